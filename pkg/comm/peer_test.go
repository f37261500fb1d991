package comm

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/spilink/pkg/comm/stream"
)

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		endpoint string
		valid    bool
	}{
		{"tcp://10.3.141.106:5561", true},
		{"tcp://:5560", true},
		{"ws://localhost:8080/spilink", true},
		{"mqtt://broker:1883/spilink/a", true},
		{"mqtt://broker:1883/", false},
		{"tcp://", false},
		{"udp://host:1", false},
		{"10.3.141.106:5561", false},
	}
	for _, tc := range testCases {
		_, err := ParseEndpoint(tc.endpoint)
		if tc.valid {
			require.NoErrorf(t, err, tc.endpoint)
		} else {
			require.Errorf(t, err, tc.endpoint)
		}
	}
	_, err := ParseEndpoint("udp://host:1")
	require.True(t, errors.Is(err, ErrUnsupportedScheme))
}

func connectPair(t *testing.T, scheme string, opts Options) (*Peer, *Peer) {
	ctx := context.Background()
	lnA, err := Listen(ctx, scheme+"://127.0.0.1:0/spilink", opts)
	require.NoError(t, err)
	lnB, err := Listen(ctx, scheme+"://127.0.0.1:0/spilink", opts)
	require.NoError(t, err)

	type result struct {
		peer *Peer
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		peer, err := Connect(ctx, lnB, lnA.Addr(), opts)
		resCh <- result{peer, err}
	}()
	peerA, err := Connect(ctx, lnA, lnB.Addr(), opts)
	require.NoError(t, err)
	res := <-resCh
	require.NoError(t, res.err)
	t.Cleanup(func() {
		peerA.Close()
		res.peer.Close()
	})
	return peerA, res.peer
}

func testExchange(t *testing.T, a, b *Peer) {
	go func() {
		a.Out.WritePacket([]byte("1000"))
	}()
	pkt, err := b.In.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "1000", string(pkt))

	go func() {
		b.Out.WritePacket([]byte("42"))
	}()
	pkt, err = a.In.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "42", string(pkt))
}

func TestConnectTCP(t *testing.T) {
	for _, framing := range []stream.Framing{stream.FramingRaw, stream.FramingLine, stream.FramingLength} {
		t.Run(string(framing), func(t *testing.T) {
			opts := Options{Framing: framing, DialInterval: 10 * time.Millisecond, ConnectTimeout: 5 * time.Second}
			a, b := connectPair(t, SchemeTCP, opts)
			testExchange(t, a, b)
		})
	}
}

func TestConnectWebSocket(t *testing.T) {
	opts := Options{DialInterval: 10 * time.Millisecond, ConnectTimeout: 5 * time.Second}
	a, b := connectPair(t, SchemeWebSocket, opts)
	testExchange(t, a, b)
}

func TestPeerClosedUnblocksRead(t *testing.T) {
	opts := Options{Framing: stream.FramingLine, DialInterval: 10 * time.Millisecond, ConnectTimeout: 5 * time.Second}
	a, b := connectPair(t, SchemeTCP, opts)
	errCh := make(chan error, 1)
	go func() {
		_, err := b.In.ReadPacket()
		errCh <- err
	}()
	require.NoError(t, a.Close())
	select {
	case err := <-errCh:
		require.True(t, IsExpectedCloseError(err), "unexpected error %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("read not unblocked")
	}
}

func TestConnectTimeout(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	dead.Close()

	opts := Options{Framing: stream.FramingRaw, DialInterval: 10 * time.Millisecond, ConnectTimeout: 200 * time.Millisecond}
	ln, err := Listen(context.Background(), "tcp://127.0.0.1:0", opts)
	require.NoError(t, err)
	addr := ln.Addr()
	_, err = Connect(context.Background(), ln, "tcp://"+deadAddr, opts)
	require.Error(t, err)

	// the listener is released.
	ln, err = Listen(context.Background(), addr, opts)
	require.NoError(t, err)
	ln.Close()
}

func TestListenAddressInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	_, err = OpenPeer(context.Background(), "tcp://"+busy.Addr().String(), "tcp://127.0.0.1:1", Options{Framing: stream.FramingRaw})
	require.Error(t, err)
}

func TestIsExpectedCloseError(t *testing.T) {
	require.False(t, IsExpectedCloseError(nil))
	require.True(t, IsExpectedCloseError(net.ErrClosed))
	require.False(t, IsExpectedCloseError(errors.New("boom")))
}
