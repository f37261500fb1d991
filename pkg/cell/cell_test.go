package cell

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/spilink/pkg/word"
)

func TestCellInitialValue(t *testing.T) {
	c := New()
	require.Equal(t, word.Word(0), c.Load())
	select {
	case <-c.Changed():
		t.Fatal("unexpected notification")
	default:
	}
}

func TestCellLastWriteWins(t *testing.T) {
	c := New()
	for n := word.Word(1); n <= 10; n++ {
		c.Store(n)
	}
	require.Equal(t, word.Word(10), c.Load())
	require.Equal(t, word.Word(10), c.Load(), "Load must not consume")
	stats := c.Stats()
	require.Equal(t, uint64(10), stats.Writes)
	require.Equal(t, uint64(2), stats.Reads)
	require.Equal(t, uint64(9), stats.Superseded)
}

func TestCellNotificationCoalesced(t *testing.T) {
	c := New()
	c.Store(1)
	c.Store(2)
	c.Store(3)
	select {
	case <-c.Changed():
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	require.Equal(t, word.Word(3), c.Load())
	select {
	case <-c.Changed():
		t.Fatal("notifications not coalesced")
	default:
	}
}

func TestCellConcurrentWriterReader(t *testing.T) {
	c := New()
	const count = 10000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := word.Word(1); n <= count; n++ {
			c.Store(n)
		}
	}()
	var last word.Word
	for last != count {
		<-c.Changed()
		v := c.Load()
		require.True(t, v >= last, "observed %d after %d", v, last)
		last = v
	}
	wg.Wait()
	stats := c.Stats()
	require.Equal(t, uint64(count), stats.Writes)
	require.True(t, stats.Reads <= count)
}

func TestMemo(t *testing.T) {
	var m Memo
	require.False(t, m.Update(0), "sentinel is 0")
	require.True(t, m.Update(5))
	require.False(t, m.Update(5))
	require.Equal(t, word.Word(5), m.Last())
	require.True(t, m.Update(0))
	require.Equal(t, word.Word(0), m.Last())
}
