package bus

import (
	"sync"

	"github.com/robotalks/spilink/pkg/word"
)

// Responder computes the word the simulated device shifts out, from the
// word it received in the previous transfer.
type Responder func(prev word.Word) word.Word

// Sim simulates a register device behind a shift register: the reply of
// each transfer is derived from what was shifted in during the previous
// one.
type Sim struct {
	Responder Responder

	prev      word.Word
	transfers uint64
	closed    bool
	lock      sync.Mutex
}

// NewSim creates a simulated device replying through responder.
// A nil responder echoes the previous word.
func NewSim(responder Responder) *Sim {
	return &Sim{Responder: responder}
}

// Transfer implements Bus.
func (s *Sim) Transfer(tx Frame) (Frame, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return Frame{}, ErrClosed
	}
	reply := s.prev
	if s.Responder != nil {
		reply = s.Responder(s.prev)
	}
	s.prev = word.FromBytes(tx)
	s.transfers++
	return reply.Bytes(), nil
}

// Transfers returns the number of transfers performed.
func (s *Sim) Transfers() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.transfers
}

// Close implements Bus.
func (s *Sim) Close() error {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
	return nil
}
