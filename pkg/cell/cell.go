// Package cell provides the single-slot shared values coupling the bus side
// and the network side of the bridge.
package cell

import (
	"sync"

	"github.com/robotalks/spilink/pkg/word"
)

// Cell holds the latest Word written by a single writer and read by a
// single reader. Writes never block and overwrite the previous value,
// whether or not it has been read.
type Cell struct {
	value   word.Word
	loaded  bool
	stats   Stats
	lock    sync.Mutex
	changed chan struct{}
}

// Stats provides counters of a Cell.
type Stats struct {
	// Writes is the number of Store calls.
	Writes uint64
	// Reads is the number of Load calls.
	Reads uint64
	// Superseded counts values overwritten before any Load observed them.
	Superseded uint64
}

// New creates a Cell holding 0.
func New() *Cell {
	return &Cell{loaded: true, changed: make(chan struct{}, 1)}
}

// Store overwrites the value and notifies the reader.
func (c *Cell) Store(v word.Word) {
	c.lock.Lock()
	if !c.loaded {
		c.stats.Superseded++
	}
	c.value, c.loaded = v, false
	c.stats.Writes++
	c.lock.Unlock()
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Load returns the latest value. It doesn't consume it.
func (c *Cell) Load() word.Word {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.loaded = true
	c.stats.Reads++
	return c.value
}

// Changed returns the chan receiving once after one or more Stores.
// Notifications are coalesced, the receiver should Load the latest value.
func (c *Cell) Changed() <-chan struct{} {
	return c.changed
}

// Stats gets a snapshot of the counters.
func (c *Cell) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}
