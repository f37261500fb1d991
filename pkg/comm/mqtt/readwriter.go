package mqtt

import (
	"io"
	"sync"
)

// ReadWriter implements PacketReadWriter: packets are read from SubTopic
// and written to PubTopic. Either topic may be empty for a one-way link.
//
// Only the latest unread packet is kept, an older one is dropped when a new
// one arrives before ReadPacket.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string
	QoS      byte

	sub      *Subscription
	packetCh chan []byte
	closed   bool
	lock     sync.Mutex
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{Queue: q, packetCh: make(chan []byte, 1)}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// Open subscribes SubTopic.
func (p *ReadWriter) Open() *ReadWriter {
	if p.SubTopic != "" {
		p.sub = p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	}
	return p
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	pkt, ok := <-p.packetCh
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if p.PubTopic == "" {
		return io.ErrClosedPipe
	}
	token := p.Queue.PubWith(p.PubTopic, pkt, p.QoS, false)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer. Pending and further ReadPacket return io.EOF.
// The Queue is left connected.
func (p *ReadWriter) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	close(p.packetCh)
	p.lock.Unlock()
	if p.sub != nil {
		return p.sub.Close()
	}
	return nil
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return
	}
	for {
		select {
		case p.packetCh <- payload:
			return
		default:
		}
		select {
		case <-p.packetCh:
		default:
		}
	}
}
