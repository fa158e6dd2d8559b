package ingest

import (
	"sync"
	"time"
)

// Batcher accumulates rows and hands them to flush in batches, either
// when the batch fills or when the interval elapses after the first
// row, whichever comes first. Used for the raw MQTT archive so every
// message does not cost a round trip.
type Batcher[T any] struct {
	mu       sync.Mutex
	buf      []T
	limit    int
	interval time.Duration
	flush    func([]T)
	timer    *time.Timer
	stopped  bool
	wg       sync.WaitGroup
}

// NewBatcher creates a batcher with the given size limit and interval.
func NewBatcher[T any](limit int, interval time.Duration, flush func([]T)) *Batcher[T] {
	return &Batcher[T]{
		limit:    limit,
		interval: interval,
		flush:    flush,
	}
}

// Add appends a row to the pending batch, flushing if it is now full.
// Adds after Stop are discarded.
func (b *Batcher[T]) Add(row T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	b.buf = append(b.buf, row)

	if len(b.buf) >= b.limit {
		b.flushLocked()
		return
	}

	// First row of a fresh batch arms the interval timer.
	if len(b.buf) == 1 {
		b.timer = time.AfterFunc(b.interval, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if !b.stopped && len(b.buf) > 0 {
				b.flushLocked()
			}
		})
	}
}

// Flush forces out any pending rows.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) > 0 {
		b.flushLocked()
	}
}

// Stop flushes remaining rows, waits for in-flight flushes, and
// discards future adds.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
	}
	if len(b.buf) > 0 {
		b.flushLocked()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Batcher[T]) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	rows := b.buf
	b.buf = nil
	// The flush callback writes to the database; run it off the lock.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.flush(rows)
	}()
}
