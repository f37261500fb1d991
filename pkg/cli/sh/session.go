package sh

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/spilink/pkg/comm"
	"github.com/robotalks/spilink/pkg/word"
)

// Session plays the peer of a bridge: it writes tokens to the bridge and
// collects the tokens the bridge sends back.
type Session struct {
	Peer *comm.Peer
	// OnReceive is called for each token received. It must be set
	// before Start.
	OnReceive func(token string)

	cancel   func()
	done     chan struct{}
	err      error
	last     string
	received uint64
	sent     uint64
	lock     sync.Mutex
}

// SessionStats provides counters of a Session.
type SessionStats struct {
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Last     string `json:"last,omitempty"`
}

// Dial establishes both links with the bridge.
func Dial(ctx context.Context, conf *Config) (*Session, error) {
	peer, err := comm.OpenPeer(ctx, conf.Listen, conf.Bridge, conf.PeerOptions())
	if err != nil {
		return nil, err
	}
	return &Session{Peer: peer, done: make(chan struct{})}, nil
}

// Start starts receiving tokens.
func (s *Session) Start() *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.receive(ctx)
	return s
}

func (s *Session) receive(ctx context.Context) {
	defer close(s.done)
	for {
		pkt, err := s.Peer.In.ReadPacket()
		if err != nil {
			if ctx.Err() == nil && !comm.IsExpectedCloseError(err) {
				glog.Errorf("receive error: %v", err)
			}
			s.lock.Lock()
			s.err = err
			s.lock.Unlock()
			return
		}
		token := string(pkt)
		s.lock.Lock()
		s.last = token
		s.received++
		s.lock.Unlock()
		if fn := s.OnReceive; fn != nil {
			fn(token)
		}
	}
}

// Send validates the value and sends it as a token.
func (s *Session) Send(value string) error {
	v, err := word.ParseToken([]byte(value))
	if err != nil {
		return err
	}
	return s.SendRaw([]byte(v.Token()))
}

// SendRaw sends a packet as is.
func (s *Session) SendRaw(pkt []byte) error {
	if err := s.Peer.Out.WritePacket(pkt); err != nil {
		return err
	}
	s.lock.Lock()
	s.sent++
	s.lock.Unlock()
	return nil
}

// Stats returns the current counters.
func (s *Session) Stats() SessionStats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return SessionStats{Sent: s.sent, Received: s.received, Last: s.last}
}

// Err returns the error which stopped receiving.
func (s *Session) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

// Close closes the links and waits for the receiving to stop.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.Peer.Close()
	if s.cancel != nil {
		<-s.done
	}
	return err
}
