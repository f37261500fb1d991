package cell

import "github.com/robotalks/spilink/pkg/word"

// Memo remembers the last value acted upon, to tell whether a Cell changed
// since. The zero Memo starts at 0, so a Cell still holding 0 is
// considered unchanged.
type Memo struct {
	last word.Word
}

// Update records v and returns true if it differs from the last value.
func (m *Memo) Update(v word.Word) bool {
	if v == m.last {
		return false
	}
	m.last = v
	return true
}

// Last returns the last value acted upon.
func (m *Memo) Last() word.Word {
	return m.last
}
