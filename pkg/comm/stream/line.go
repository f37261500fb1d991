package stream

import (
	"bufio"
	"bytes"
	"io"
)

// LineReadWriter implements PacketReadWriter with '\n' terminated packets.
// A trailing '\r' is removed when reading.
type LineReadWriter struct {
	base
	scanner *bufio.Scanner
}

// NewLine creates a LineReadWriter with io.ReadWriter.
func NewLine(s io.ReadWriter) *LineReadWriter {
	scanner := bufio.NewScanner(s)
	scanner.Buffer(make([]byte, 0, 64), MaxPacketSize)
	return &LineReadWriter{base: base{ReadWriter: s}, scanner: scanner}
}

// ReadPacket implements PacketReader.
func (p *LineReadWriter) ReadPacket() ([]byte, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			if err == bufio.ErrTooLong {
				return nil, ErrPacketTooLarge
			}
			return nil, err
		}
		return nil, io.EOF
	}
	line := bytes.TrimSuffix(p.scanner.Bytes(), []byte{'\r'})
	return append([]byte(nil), line...), nil
}

// WritePacket implements PacketWriter.
// A packet must not contain '\n'.
func (p *LineReadWriter) WritePacket(pkt []byte) error {
	return p.write(pkt, []byte{'\n'})
}
