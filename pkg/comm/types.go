// Package comm provides the network side of the bridge: packet oriented
// links to the peer and their establishment.
package comm

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Link is an established PacketReadWriter which must be closed.
type Link interface {
	PacketReadWriter
	io.Closer
}

// IsExpectedCloseError reports whether err is a normal termination of a
// link: EOF, closed connection, broken pipe or connection reset.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
