package word

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Size is the number of bytes of a Word on the bus.
const Size = 4

// Max is the largest representable Word.
const Max = Word(0xffffffff)

// Word is the 32-bit unsigned register value.
type Word uint32

var (
	// ErrSyntax indicates a token is not a decimal number.
	ErrSyntax = errors.New("invalid syntax")
	// ErrRange indicates a token or value doesn't fit in a Word.
	ErrRange = errors.New("value out of range")
)

// ParseError is returned when a token can't be decoded.
type ParseError struct {
	Token string
	Err   error
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse token %q: %v", e.Token, e.Err)
}

// Unwrap returns ErrSyntax or ErrRange.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// FromBytes decodes 4 bytes, most-significant first.
func FromBytes(b [Size]byte) Word {
	return Word(b[0])<<24 | Word(b[1])<<16 | Word(b[2])<<8 | Word(b[3])
}

// FromInt converts a wider integer, rejecting values outside [0, Max].
func FromInt(v int64) (Word, error) {
	if v < 0 || v > int64(Max) {
		return 0, ErrRange
	}
	return Word(v), nil
}

// Bytes encodes the word as 4 bytes, most-significant first.
func (w Word) Bytes() [Size]byte {
	return [Size]byte{byte(w >> 24), byte(w >> 16), byte(w >> 8), byte(w)}
}

// Token renders the word in decimal.
func (w Word) Token() string {
	return strconv.FormatUint(uint64(w), 10)
}

// String implements fmt.Stringer.
func (w Word) String() string {
	return w.Token()
}

// ParseToken decodes a decimal token.
// Surrounding whitespace, including line terminators, is ignored.
func ParseToken(token []byte) (Word, error) {
	s := bytes.TrimSpace(token)
	if len(s) == 0 {
		return 0, &ParseError{Token: string(token), Err: ErrSyntax}
	}
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, &ParseError{Token: string(token), Err: ErrSyntax}
		}
		v = v*10 + uint64(c-'0')
		if v > uint64(Max) {
			return 0, &ParseError{Token: string(token), Err: ErrRange}
		}
	}
	return Word(v), nil
}
