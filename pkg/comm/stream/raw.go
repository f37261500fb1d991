package stream

import "io"

// RawReadWriter implements PacketReadWriter with no framing at all:
// a packet is whatever a single Read returns.
type RawReadWriter struct {
	base
	buf []byte
}

// NewRaw creates a RawReadWriter with io.ReadWriter.
func NewRaw(s io.ReadWriter) *RawReadWriter {
	return &RawReadWriter{base: base{ReadWriter: s}, buf: make([]byte, RawReadSize)}
}

// ReadPacket implements PacketReader.
func (p *RawReadWriter) ReadPacket() ([]byte, error) {
	for {
		n, err := p.Read(p.buf)
		if n > 0 {
			return append([]byte(nil), p.buf[:n]...), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// WritePacket implements PacketWriter.
func (p *RawReadWriter) WritePacket(pkt []byte) error {
	return p.write(pkt)
}
