// Package bus provides access to the register device on the serial bus.
package bus

import (
	"errors"
	"io"

	"github.com/robotalks/spilink/pkg/word"
)

// Frame is the bytes exchanged in a single transfer.
type Frame [word.Size]byte

// Bus represents an opened bus device.
type Bus interface {
	io.Closer
	// Transfer performs one synchronous full-duplex transfer: tx is
	// shifted out while the reply is shifted in.
	Transfer(tx Frame) (Frame, error)
}

// ErrClosed indicates the bus is already closed.
var ErrClosed = errors.New("bus closed")

// Func is the func form of Bus. Close is a no-op.
type Func func(tx Frame) (Frame, error)

// Transfer implements Bus.
func (f Func) Transfer(tx Frame) (Frame, error) {
	return f(tx)
}

// Close implements Bus.
func (f Func) Close() error {
	return nil
}
