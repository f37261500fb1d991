package bridge

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/spilink/pkg/cell"
	"github.com/robotalks/spilink/pkg/comm"
	fx "github.com/robotalks/spilink/pkg/framework"
	"github.com/robotalks/spilink/pkg/word"
)

// Receiver decodes tokens from the peer into ToBus.
type Receiver struct {
	In    comm.PacketReader
	ToBus *cell.Cell

	received  atomic.Uint64
	malformed atomic.Uint64
}

// NewReceiver creates a Receiver.
func NewReceiver(in comm.PacketReader, toBus *cell.Cell) *Receiver {
	return &Receiver{In: in, ToBus: toBus}
}

// Name implements framework.Named.
func (r *Receiver) Name() string { return "receiver" }

// Run implements framework.Runnable.
// It returns when the stream fails or ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		var pkt []byte
		err := runStream(ctx, r.In, func() (err error) {
			pkt, err = r.In.ReadPacket()
			return
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive: %w", err)
		}
		r.received.Add(1)
		v, err := word.ParseToken(pkt)
		if err != nil {
			r.malformed.Add(1)
			glog.V(2).Infof("discard: %v", err)
			continue
		}
		glog.V(2).Infof("received: %s", v)
		r.ToBus.Store(v)
	}
}

// Received returns the number of tokens read.
func (r *Receiver) Received() uint64 {
	return r.received.Load()
}

// Malformed returns the number of tokens discarded.
func (r *Receiver) Malformed() uint64 {
	return r.malformed.Load()
}

// Sender sends FromBus to the peer whenever it changes.
type Sender struct {
	Out     comm.PacketWriter
	FromBus *cell.Cell

	memo cell.Memo
	sent atomic.Uint64
}

// NewSender creates a Sender.
func NewSender(out comm.PacketWriter, fromBus *cell.Cell) *Sender {
	return &Sender{Out: out, FromBus: fromBus}
}

// Name implements framework.Named.
func (s *Sender) Name() string { return "sender" }

// Run implements framework.Runnable.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.FromBus.Changed():
		}
		v := s.FromBus.Load()
		if !s.memo.Update(v) {
			continue
		}
		glog.V(1).Infof("from bus: %s", v)
		err := runStream(ctx, s.Out, func() error {
			return s.Out.WritePacket([]byte(v.Token()))
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("send: %w", err)
		}
		s.sent.Add(1)
	}
}

// Sent returns the number of tokens written.
func (s *Sender) Sent() uint64 {
	return s.sent.Load()
}

// runStream runs a blocking stream operation. The stream is closed to
// unblock fn if ctx is done first.
func runStream(ctx context.Context, stream interface{}, fn func() error) error {
	if closer, ok := stream.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, fn)
	}
	return fx.RunWithContext(ctx, fn)
}
