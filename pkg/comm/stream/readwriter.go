// Package stream implements packet framings over byte streams.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing selects how packet boundaries are encoded in a byte stream.
type Framing string

// Framings
const (
	// FramingRaw sends packets as is, with no delimiter. Each Read from
	// the stream is taken as one packet. This relies on the peer and the
	// transport keeping writes apart and is kept for compatibility.
	FramingRaw Framing = "raw"
	// FramingLine terminates each packet with '\n'.
	FramingLine Framing = "line"
	// FramingLength prefixes each packet with its length in 4 bytes,
	// big-endian.
	FramingLength Framing = "length"
)

const (
	// RawReadSize is the maximum size of a packet read in raw framing.
	RawReadSize = 1024
	// MaxPacketSize is the maximum packet size accepted by line and length
	// framings.
	MaxPacketSize = 65536
)

var (
	// ErrPacketTooLarge indicates the packet exceeds MaxPacketSize.
	ErrPacketTooLarge = errors.New("packet too large")
	// ErrUnknownFraming indicates the framing is not supported.
	ErrUnknownFraming = errors.New("unknown framing")
)

// ParseFraming validates the name of a framing.
func ParseFraming(name string) (Framing, error) {
	switch f := Framing(name); f {
	case FramingRaw, FramingLine, FramingLength:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFraming, name)
}

// ReadWriteCloser implements PacketReadWriter and io.Closer.
type ReadWriteCloser interface {
	ReadPacket() ([]byte, error)
	WritePacket([]byte) error
	io.Closer
}

// New wraps s with the framing.
func New(s io.ReadWriter, framing Framing) (ReadWriteCloser, error) {
	switch framing {
	case FramingRaw:
		return NewRaw(s), nil
	case FramingLine:
		return NewLine(s), nil
	case FramingLength:
		return NewLength(s), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, framing)
}

type base struct {
	io.ReadWriter
	writeLock sync.Mutex
}

// Close closes the underlying stream if it's an io.Closer.
func (b *base) Close() error {
	if closer, ok := b.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (b *base) write(chunks ...[]byte) error {
	b.writeLock.Lock()
	defer b.writeLock.Unlock()
	for _, chunk := range chunks {
		if _, err := b.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// LengthReadWriter implements PacketReadWriter.
// Each packet is prefixed by 4-byte (big-endian) indicate the length.
type LengthReadWriter struct {
	base
}

// NewLength creates a LengthReadWriter with io.ReadWriter.
func NewLength(s io.ReadWriter) *LengthReadWriter {
	return &LengthReadWriter{base: base{ReadWriter: s}}
}

// ReadPacket implements PacketReader.
func (p *LengthReadWriter) ReadPacket() ([]byte, error) {
	var size uint32
	if err := binary.Read(p.ReadWriter, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d", ErrPacketTooLarge, size)
	}
	pkt := make([]byte, size)
	if _, err := io.ReadFull(p.ReadWriter, pkt); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return pkt, nil
}

// WritePacket implements PacketWriter.
func (p *LengthReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) > MaxPacketSize {
		return fmt.Errorf("%w: %d", ErrPacketTooLarge, len(pkt))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(pkt)))
	return p.write(prefix[:], pkt)
}
