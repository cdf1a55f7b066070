// Package series holds the ordered bar sequence shared between a market data
// writer and the strategy pipeline.
package series

import (
	"errors"
	"fmt"
	"sync"

	"meanrev/types"
)

var (
	ErrOutOfOrder = errors.New("bar timestamp is not after the last accepted bar")
	ErrBarClosed  = errors.New("bar is already closed")
)

// Buffer is an append-only sequence of candles ordered by timestamp. The last
// candle may be replaced while it is not closed; a newer candle finalizes it.
// Reads return copies.
type Buffer struct {
	mu      sync.RWMutex
	candles []types.Candle
	// candles[:start] are evicted and reclaimed in batches
	start int
	limit int
}

// NewBuffer creates an empty buffer. A positive limit caps the number of
// retained candles; the oldest are discarded first.
func NewBuffer(limit int) *Buffer {
	if limit < 0 {
		limit = 0
	}
	return &Buffer{limit: limit}
}

// Append adds a candle whose timestamp is strictly after the last one.
func (b *Buffer) Append(c types.Candle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.candles); n > b.start {
		last := b.candles[n-1]
		if !c.Timestamp.After(last.Timestamp) {
			return fmt.Errorf("append %s after %s: %w", c.Timestamp, last.Timestamp, ErrOutOfOrder)
		}
	}
	b.push(c)
	return nil
}

// Upsert replaces the last candle when the timestamps match and the last
// candle is still open, otherwise it behaves like Append. A forming candle
// that is followed by a newer one is kept as final with its last update.
func (b *Buffer) Upsert(c types.Candle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.candles)
	if n == b.start {
		b.push(c)
		return nil
	}
	last := b.candles[n-1]
	switch {
	case c.Timestamp.Equal(last.Timestamp):
		if last.Closed {
			return fmt.Errorf("replace %s: %w", c.Timestamp, ErrBarClosed)
		}
		b.candles[n-1] = c
	case c.Timestamp.After(last.Timestamp):
		b.push(c)
	default:
		return fmt.Errorf("upsert %s after %s: %w", c.Timestamp, last.Timestamp, ErrOutOfOrder)
	}
	return nil
}

// Load appends candles in order and stops at the first rejected one.
func (b *Buffer) Load(candles []types.Candle) error {
	for _, c := range candles {
		if err := b.Append(c); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) push(c types.Candle) {
	if n := len(b.candles); n > b.start && !b.candles[n-1].Closed {
		b.candles[n-1].Closed = true
	}
	b.candles = append(b.candles, c)
	if b.limit == 0 || len(b.candles)-b.start <= b.limit {
		return
	}
	b.start++
	if b.start >= b.limit {
		b.candles = append(make([]types.Candle, 0, 2*b.limit), b.candles[b.start:]...)
		b.start = 0
	}
}

func (b *Buffer) view() []types.Candle {
	return b.candles[b.start:]
}

// Snapshot returns a copy of the buffered candles.
func (b *Buffer) Snapshot() []types.Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Candle, len(b.view()))
	copy(out, b.view())
	return out
}

// ClosedSnapshot returns a copy that excludes a trailing open candle.
func (b *Buffer) ClosedSnapshot() []types.Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	candles := b.view()
	n := len(candles)
	if n > 0 && !candles[n-1].Closed {
		n--
	}
	out := make([]types.Candle, n)
	copy(out, candles[:n])
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.view())
}

// Last returns the most recent candle, if any.
func (b *Buffer) Last() (types.Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	candles := b.view()
	if len(candles) == 0 {
		return types.Candle{}, false
	}
	return candles[len(candles)-1], true
}
