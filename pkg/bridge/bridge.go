package bridge

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/spilink/pkg/bus"
	"github.com/robotalks/spilink/pkg/cell"
	"github.com/robotalks/spilink/pkg/comm"
	fx "github.com/robotalks/spilink/pkg/framework"
	"github.com/robotalks/spilink/pkg/word"
)

// DefaultCadence is the default interval between bus transfers.
const DefaultCadence = 5 * time.Second

// Stats is a snapshot of the Bridge counters.
type Stats struct {
	Cycles         uint64
	TransferErrors uint64
	Received       uint64
	Malformed      uint64
	Sent           uint64
	// LastToBus is the Word being sent to the bus.
	LastToBus word.Word
	// LastFromBus is the Word of the last successful transfer.
	LastFromBus word.Word
	ToBus       cell.Stats
	FromBus     cell.Stats
}

// Bridge assembles the Cells, the Transfer, the Receiver and the Sender.
type Bridge struct {
	Cadence time.Duration

	ToBus   *cell.Cell
	FromBus *cell.Cell

	transfer *Transfer
	receiver *Receiver
	sender   *Sender
	closers  []io.Closer
	adders   []fx.LoopAdder
}

// New creates a Bridge. Closing the Bridge closes in, out and the bus
// in that order.
func New(b bus.Bus, in comm.PacketReader, out comm.PacketWriter) *Bridge {
	br := &Bridge{
		Cadence: DefaultCadence,
		ToBus:   cell.New(),
		FromBus: cell.New(),
	}
	br.transfer = NewTransfer(b, br.ToBus, br.FromBus)
	br.receiver = NewReceiver(in, br.ToBus)
	br.sender = NewSender(out, br.FromBus)
	for _, s := range []interface{}{in, out} {
		if closer, ok := s.(io.Closer); ok {
			br.closers = append(br.closers, closer)
		}
	}
	br.closers = append(br.closers, b)
	return br
}

// With adds extra components to the loop created by Run.
func (b *Bridge) With(adders ...fx.LoopAdder) *Bridge {
	b.adders = append(b.adders, adders...)
	return b
}

// AddToLoop implements framework.LoopAdder.
func (b *Bridge) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvControl, b.transfer)
	l.AddRunnable(b.receiver, b.sender)
}

// Run runs the bridge until ctx is done or the peer stream fails.
// All streams and the bus are closed before returning.
// Cancellation of ctx is not reported as an error.
func (b *Bridge) Run(ctx context.Context) error {
	loop := fx.NewLoop()
	loop.Interval = b.Cadence
	if loop.Interval <= 0 {
		loop.Interval = DefaultCadence
	}
	loop.Add(b).Add(b.adders...)
	glog.Infof("bridge started, cadence %s", loop.Interval)
	err := loop.Run(ctx)
	if closeErr := b.Close(); err == nil || errors.Is(err, context.Canceled) {
		err = closeErr
	}
	if err != nil {
		glog.Errorf("bridge stopped: %v", err)
	} else {
		glog.Info("bridge stopped")
	}
	return err
}

// Close closes the peer streams then the bus.
func (b *Bridge) Close() error {
	var errs fx.AggregatedError
	for _, closer := range b.closers {
		if err := closer.Close(); err != nil && !comm.IsExpectedCloseError(err) {
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}

// Stats returns the current counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Cycles:         b.transfer.Cycles(),
		TransferErrors: b.transfer.Failures(),
		Received:       b.receiver.Received(),
		Malformed:      b.receiver.Malformed(),
		Sent:           b.sender.Sent(),
		LastToBus:      b.transfer.Sent(),
		LastFromBus:    b.transfer.Received(),
		ToBus:          b.ToBus.Stats(),
		FromBus:        b.FromBus.Stats(),
	}
}
