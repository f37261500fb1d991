package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/spilink/pkg/bus"
	"github.com/robotalks/spilink/pkg/cell"
	"github.com/robotalks/spilink/pkg/word"
)

type chanStream struct {
	readCh    chan []byte
	writeCh   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanStream() *chanStream {
	return &chanStream{
		readCh:  make(chan []byte, 16),
		writeCh: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (s *chanStream) ReadPacket() ([]byte, error) {
	select {
	case pkt, ok := <-s.readCh:
		if !ok {
			return nil, io.EOF
		}
		return pkt, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *chanStream) WritePacket(pkt []byte) error {
	select {
	case s.writeCh <- pkt:
		return nil
	case <-s.closed:
		return io.ErrClosedPipe
	}
}

func (s *chanStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *chanStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *chanStream) expectWrite(t *testing.T, token string) {
	select {
	case pkt := <-s.writeCh:
		require.Equal(t, token, string(pkt))
	case <-time.After(5 * time.Second):
		t.Fatalf("expect %q written", token)
	}
}

func (s *chanStream) expectNoWrite(t *testing.T) {
	select {
	case pkt := <-s.writeCh:
		t.Fatalf("unexpected write %q", pkt)
	case <-time.After(50 * time.Millisecond):
	}
}

type recordingBus struct {
	lock  sync.Mutex
	sent  []bus.Frame
	reply bus.Frame
	err   error
}

func (b *recordingBus) Transfer(tx bus.Frame) (bus.Frame, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.sent = append(b.sent, tx)
	return b.reply, b.err
}

func (b *recordingBus) Close() error {
	return nil
}

func (b *recordingBus) frames() []bus.Frame {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]bus.Frame(nil), b.sent...)
}

func TestTransferEncodesToBus(t *testing.T) {
	b := &recordingBus{reply: bus.Frame{0, 0, 0, 42}}
	toBus, fromBus := cell.New(), cell.New()
	tr := NewTransfer(b, toBus, fromBus)

	toBus.Store(1000)
	require.NoError(t, tr.Cycle())
	require.Equal(t, []bus.Frame{{0, 0, 3, 232}}, b.frames())
	require.Equal(t, word.Word(42), fromBus.Load())
	require.Equal(t, word.Word(1000), tr.Sent())
	require.Equal(t, word.Word(42), tr.Received())
}

func TestTransferEveryCycle(t *testing.T) {
	b := &recordingBus{}
	toBus, fromBus := cell.New(), cell.New()
	tr := NewTransfer(b, toBus, fromBus)

	// nothing received yet, zero is sent.
	require.NoError(t, tr.Cycle())
	toBus.Store(7)
	require.NoError(t, tr.Cycle())
	require.NoError(t, tr.Cycle())
	require.Equal(t, []bus.Frame{{}, {0, 0, 0, 7}, {0, 0, 0, 7}}, b.frames())
	require.Equal(t, uint64(3), tr.Cycles())
}

func TestTransferSamplesLatest(t *testing.T) {
	b := &recordingBus{}
	toBus, fromBus := cell.New(), cell.New()
	tr := NewTransfer(b, toBus, fromBus)

	for _, v := range []word.Word{1, 2, 3} {
		toBus.Store(v)
	}
	require.NoError(t, tr.Cycle())
	require.Equal(t, []bus.Frame{{0, 0, 0, 3}}, b.frames())
	require.Equal(t, uint64(2), toBus.Stats().Superseded)
}

func TestTransferFailure(t *testing.T) {
	b := &recordingBus{reply: bus.Frame{0, 0, 0, 9}}
	toBus, fromBus := cell.New(), cell.New()
	tr := NewTransfer(b, toBus, fromBus)
	require.NoError(t, tr.Cycle())
	require.Equal(t, word.Word(9), fromBus.Load())

	b.err = errors.New("bus error")
	b.reply = bus.Frame{0, 0, 0, 10}
	require.Error(t, tr.Cycle())
	require.Equal(t, word.Word(9), fromBus.Load())
	require.Equal(t, uint64(1), tr.Failures())
	require.Equal(t, uint64(2), tr.Cycles())
}

func TestReceiverDiscardsMalformed(t *testing.T) {
	in := newChanStream()
	toBus := cell.New()
	r := NewReceiver(in, toBus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	in.readCh <- []byte("1000")
	require.Eventually(t, func() bool { return toBus.Load() == 1000 }, 5*time.Second, time.Millisecond)
	in.readCh <- []byte("abc")
	in.readCh <- []byte("-1")
	in.readCh <- []byte("4294967296")
	require.Eventually(t, func() bool { return r.Malformed() == 3 }, 5*time.Second, time.Millisecond)
	require.Equal(t, word.Word(1000), toBus.Load())
	require.Equal(t, uint64(4), r.Received())

	cancel()
	require.Equal(t, context.Canceled, <-errCh)
	require.True(t, in.isClosed())
}

func TestReceiverStreamEnds(t *testing.T) {
	in := newChanStream()
	close(in.readCh)
	r := NewReceiver(in, cell.New())
	err := r.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, io.EOF))
}

func TestSenderSendsChanges(t *testing.T) {
	out := newChanStream()
	fromBus := cell.New()
	s := NewSender(out, fromBus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	// 0 is the initial value, not a change.
	fromBus.Store(0)
	out.expectNoWrite(t)
	fromBus.Store(42)
	out.expectWrite(t, "42")
	fromBus.Store(42)
	out.expectNoWrite(t)
	fromBus.Store(7)
	out.expectWrite(t, "7")
	require.Equal(t, uint64(2), s.Sent())

	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestSenderStreamFails(t *testing.T) {
	out := newChanStream()
	out.Close()
	fromBus := cell.New()
	fromBus.Store(1)
	err := NewSender(out, fromBus).Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, io.ErrClosedPipe))
}

func TestBridgeEndToEnd(t *testing.T) {
	in, out := newChanStream(), newChanStream()
	b := &recordingBus{reply: bus.Frame{0, 0, 0, 42}}
	br := New(b, in, out)
	br.Cadence = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- br.Run(ctx) }()

	in.readCh <- []byte("1000")
	out.expectWrite(t, "42")
	require.Eventually(t, func() bool {
		frames := b.frames()
		return len(frames) > 0 && frames[len(frames)-1] == bus.Frame{0, 0, 3, 232}
	}, 5*time.Second, time.Millisecond)
	// unchanged bus value is not sent again.
	out.expectNoWrite(t)

	cancel()
	require.NoError(t, <-errCh)
	require.True(t, in.isClosed())
	require.True(t, out.isClosed())

	st := br.Stats()
	require.Equal(t, uint64(1), st.Received)
	require.Equal(t, uint64(1), st.Sent)
	require.Equal(t, word.Word(1000), st.LastToBus)
	require.Equal(t, word.Word(42), st.LastFromBus)
	require.True(t, st.Cycles >= 2)
}

func TestBridgeStopsWhenPeerCloses(t *testing.T) {
	in, out := newChanStream(), newChanStream()
	br := New(&recordingBus{}, in, out)
	br.Cadence = 10 * time.Millisecond
	errCh := make(chan error, 1)
	go func() { errCh <- br.Run(context.Background()) }()

	close(in.readCh)
	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, io.EOF))
	case <-time.After(5 * time.Second):
		t.Fatal("bridge not stopped")
	}
	require.True(t, out.isClosed())
}
