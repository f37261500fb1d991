package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/spilink/pkg/comm/mqtt"
	"github.com/robotalks/spilink/pkg/comm/stream"
	"github.com/robotalks/spilink/pkg/comm/websocket"
	fx "github.com/robotalks/spilink/pkg/framework"
)

// Endpoint URL schemes.
const (
	SchemeTCP       = "tcp"
	SchemeWebSocket = "ws"
	SchemeMQTT      = "mqtt"
)

// DefaultDialInterval is the default interval between dial attempts.
const DefaultDialInterval = 500 * time.Millisecond

// ErrUnsupportedScheme indicates the endpoint URL scheme is unknown.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Options configures link establishment.
type Options struct {
	// Framing applies to tcp endpoints.
	Framing stream.Framing
	// DialInterval is the wait between dial attempts.
	DialInterval time.Duration
	// ConnectTimeout bounds the establishment of both links.
	ConnectTimeout time.Duration
}

// Listener accepts a single inbound Link.
type Listener interface {
	// Addr returns the address peers should connect to.
	Addr() string
	// Accept waits for the peer.
	Accept(context.Context) (Link, error)
	// Close releases the Listener if Accept hasn't succeeded.
	Close() error
}

// Peer holds both links to the peer. In is the connection made to the
// peer and only read from; Out is the connection accepted from the peer
// and only written to.
type Peer struct {
	In  Link
	Out Link
}

// ParseEndpoint parses and validates an endpoint URL.
func ParseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case SchemeTCP, SchemeWebSocket:
	case SchemeMQTT:
		if strings.Trim(u.Path, "/") == "" {
			return nil, fmt.Errorf("endpoint %q: topic required", endpoint)
		}
	default:
		return nil, fmt.Errorf("endpoint %q: %w: %q", endpoint, ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q: host:port required", endpoint)
	}
	return u, nil
}

// Listen prepares the endpoint for the peer to connect to.
// For mqtt, the URL path is the topic packets are published to.
func Listen(ctx context.Context, endpoint string, opts Options) (Listener, error) {
	u, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case SchemeTCP:
		ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		glog.Infof("listening on %s", ln.Addr())
		return &tcpListener{ln: ln, framing: opts.Framing}, nil
	case SchemeWebSocket:
		ln, err := websocket.Listen(ctx, u)
		if err != nil {
			return nil, err
		}
		return &wsListener{Listener: ln, path: u.Path}, nil
	default:
		return &mqttListener{url: u, timeout: opts.ConnectTimeout}, nil
	}
}

// Dial connects to the peer endpoint, retrying until ctx is done.
// For mqtt, the URL path is the topic packets are read from.
func Dial(ctx context.Context, endpoint string, opts Options) (Link, error) {
	u, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	interval := opts.DialInterval
	if interval <= 0 {
		interval = DefaultDialInterval
	}
	switch u.Scheme {
	case SchemeTCP:
		var dialer net.Dialer
		for {
			conn, err := dialer.DialContext(ctx, "tcp", u.Host)
			if err == nil {
				glog.Infof("connected to %s", conn.RemoteAddr())
				return newStreamLink(conn, opts.Framing)
			}
			glog.V(1).Infof("dial %s: %v", u.Host, err)
			select {
			case <-ctx.Done():
				return nil, err
			case <-time.After(interval):
			}
		}
	case SchemeWebSocket:
		rw, err := websocket.Dial(ctx, u, interval)
		if err != nil {
			return nil, err
		}
		return rw, nil
	default:
		return openMQTT(u, opts.ConnectTimeout, strings.Trim(u.Path, "/"), "")
	}
}

// Connect accepts the peer on ln and dials the peer endpoint at the same
// time, as the peer does the same. On failure everything is released,
// including ln.
func Connect(ctx context.Context, ln Listener, peerEndpoint string, opts Options) (*Peer, error) {
	if opts.ConnectTimeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		link Link
		err  error
	}
	acceptCh, dialCh := make(chan result, 1), make(chan result, 1)
	go func() {
		link, err := ln.Accept(ctx)
		if err != nil {
			ln.Close()
			err = fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		acceptCh <- result{link: link, err: err}
	}()
	go func() {
		link, err := Dial(ctx, peerEndpoint, opts)
		if err != nil {
			err = fmt.Errorf("connect to %s: %w", peerEndpoint, err)
		}
		dialCh <- result{link: link, err: err}
	}()

	var peer Peer
	var errs fx.AggregatedError
	for acceptCh != nil || dialCh != nil {
		select {
		case r := <-acceptCh:
			acceptCh, peer.Out = nil, r.link
			if r.err != nil {
				errs.Add(r.err)
				cancel()
			}
		case r := <-dialCh:
			dialCh, peer.In = nil, r.link
			if r.err != nil {
				errs.Add(r.err)
				cancel()
			}
		}
	}
	if err := errs.Aggregate(); err != nil {
		peer.Close()
		return nil, err
	}
	return &peer, nil
}

// OpenPeer listens on listenEndpoint and connects to peerEndpoint.
func OpenPeer(ctx context.Context, listenEndpoint, peerEndpoint string, opts Options) (*Peer, error) {
	ln, err := Listen(ctx, listenEndpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listenEndpoint, err)
	}
	return Connect(ctx, ln, peerEndpoint, opts)
}

// Close closes both links.
func (p *Peer) Close() error {
	var errs fx.AggregatedError
	if p.In != nil {
		errs.Add(p.In.Close())
	}
	if p.Out != nil {
		errs.Add(p.Out.Close())
	}
	return errs.Aggregate()
}

type tcpListener struct {
	ln      net.Listener
	framing stream.Framing
}

func (l *tcpListener) Addr() string {
	return "tcp://" + l.ln.Addr().String()
}

func (l *tcpListener) Accept(ctx context.Context) (Link, error) {
	// only one connection is accepted.
	defer l.ln.Close()
	var conn net.Conn
	err := fx.RunWithContextCloser(ctx, l.ln, func() (err error) {
		conn, err = l.ln.Accept()
		return
	})
	if err != nil {
		return nil, err
	}
	glog.Infof("accepted %s", conn.RemoteAddr())
	return newStreamLink(conn, l.framing)
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

type wsListener struct {
	*websocket.Listener
	path string
}

func (l *wsListener) Addr() string {
	return "ws://" + l.Listener.Addr().String() + l.path
}

func (l *wsListener) Accept(ctx context.Context) (Link, error) {
	conn, err := l.Listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func newStreamLink(conn net.Conn, framing stream.Framing) (Link, error) {
	link, err := stream.New(conn, framing)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return link, nil
}

type mqttListener struct {
	url     *url.URL
	timeout time.Duration
}

func (l *mqttListener) Addr() string {
	return l.url.String()
}

func (l *mqttListener) Accept(ctx context.Context) (Link, error) {
	return openMQTT(l.url, l.timeout, "", strings.Trim(l.url.Path, "/"))
}

func (l *mqttListener) Close() error {
	return nil
}

type mqttLink struct {
	*mqtt.ReadWriter
}

func (l *mqttLink) Close() error {
	err := l.ReadWriter.Close()
	l.Queue.Close()
	return err
}

func openMQTT(u *url.URL, timeout time.Duration, subTopic, pubTopic string) (Link, error) {
	broker := *u
	broker.Path = ""
	opts, _, err := mqtt.ClientOptionsFromURL(broker.String())
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = mqtt.DefaultConnectTimeout
	}
	q := mqtt.NewQueue(opts, "")
	rw := mqtt.NewPacketReadWriter(q).WithTopics(subTopic, pubTopic).Open()
	if err := q.ConnectWait(timeout); err != nil {
		q.Close()
		return nil, fmt.Errorf("mqtt connect %s: %w", broker.Host, err)
	}
	rw.QoS = 1
	return &mqttLink{ReadWriter: rw}, nil
}
