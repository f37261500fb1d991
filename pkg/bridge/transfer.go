package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/spilink/pkg/bus"
	"github.com/robotalks/spilink/pkg/cell"
	fx "github.com/robotalks/spilink/pkg/framework"
	"github.com/robotalks/spilink/pkg/word"
)

// Transfer exchanges one Word with the bus per cycle.
type Transfer struct {
	Bus     bus.Bus
	ToBus   *cell.Cell
	FromBus *cell.Cell

	memo     cell.Memo
	tx       bus.Frame
	sent     atomic.Uint32
	received atomic.Uint32
	cycles   atomic.Uint64
	failures atomic.Uint64
}

// NewTransfer creates a Transfer.
func NewTransfer(b bus.Bus, toBus, fromBus *cell.Cell) *Transfer {
	return &Transfer{Bus: b, ToBus: toBus, FromBus: fromBus}
}

// Control implements framework.Controller.
func (t *Transfer) Control(fx.ControlContext) error {
	return t.Cycle()
}

// Cycle performs a single transfer. The frame sent is re-encoded only
// when ToBus changed, otherwise the previous frame is sent again.
// On failure FromBus is left untouched.
func (t *Transfer) Cycle() error {
	if v := t.ToBus.Load(); t.memo.Update(v) {
		glog.V(1).Infof("to bus: %s", v)
		t.tx = v.Bytes()
		t.sent.Store(uint32(v))
	}
	t.cycles.Add(1)
	rx, err := t.Bus.Transfer(t.tx)
	if err != nil {
		t.failures.Add(1)
		return fmt.Errorf("bus transfer: %w", err)
	}
	v := word.FromBytes(rx)
	t.received.Store(uint32(v))
	t.FromBus.Store(v)
	return nil
}

// Sent returns the Word currently being sent to the bus.
func (t *Transfer) Sent() word.Word {
	return word.Word(t.sent.Load())
}

// Received returns the Word of the last successful transfer.
func (t *Transfer) Received() word.Word {
	return word.Word(t.received.Load())
}

// Cycles returns the number of transfers attempted.
func (t *Transfer) Cycles() uint64 {
	return t.cycles.Load()
}

// Failures returns the number of failed transfers.
func (t *Transfer) Failures() uint64 {
	return t.failures.Load()
}
