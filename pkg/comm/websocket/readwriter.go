// Package websocket links peers with WebSocket connections, one packet per
// WebSocket message.
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// ErrAlreadyConnected is logged when a second peer connects.
var ErrAlreadyConnected = errors.New("already connected")

// Listener serves WebSocket on a path and hands out the first connection.
// Later connections are refused.
type Listener struct {
	ln        net.Listener
	server    *http.Server
	path      string
	connCh    chan *websocket.Conn
	done      chan struct{}
	claimed   int32
	closeOnce sync.Once
}

// ServerConn is the connection accepted by Listener.
// Closing it also closes the Listener.
type ServerConn struct {
	*ReadWriter
	listener *Listener
}

// Close implements io.Closer.
func (c *ServerConn) Close() error {
	err := c.ReadWriter.Close()
	c.listener.Close()
	return err
}

// Listen starts serving WebSocket on the URL (ws://host:port/path).
func Listen(ctx context.Context, u *url.URL) (*Listener, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:     ln,
		path:   u.Path,
		connCh: make(chan *websocket.Conn, 1),
		done:   make(chan struct{}),
	}
	if l.path == "" {
		l.path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(l.path, websocket.Handler(l.handleConn))
	l.server = &http.Server{Handler: mux}
	go l.server.Serve(ln)
	glog.Infof("websocket listening on %s%s", ln.Addr(), l.path)
	return l, nil
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept waits for the first connection.
func (l *Listener) Accept(ctx context.Context) (*ServerConn, error) {
	select {
	case conn := <-l.connCh:
		glog.Infof("websocket accepted %s", conn.Request().RemoteAddr)
		return &ServerConn{ReadWriter: New(conn), listener: l}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops serving and releases a connection not yet accepted.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}

func (l *Listener) handleConn(conn *websocket.Conn) {
	if !atomic.CompareAndSwapInt32(&l.claimed, 0, 1) {
		glog.Warningf("websocket %s: %v", conn.Request().RemoteAddr, ErrAlreadyConnected)
		return
	}
	l.connCh <- conn
	// the connection is closed when the handler returns.
	<-l.done
}

// Dial connects to the URL, retrying every interval until ctx is done.
func Dial(ctx context.Context, u *url.URL, interval time.Duration) (*ReadWriter, error) {
	origin := "http://" + u.Host + "/"
	for {
		conn, err := websocket.Dial(u.String(), "", origin)
		if err == nil {
			glog.Infof("websocket connected to %s", u)
			return New(conn), nil
		}
		glog.V(1).Infof("websocket dial %s: %v", u, err)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(interval):
		}
	}
}
