package reactive

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Cell.Await when no value appears in time.
var ErrTimeout = errors.New("reactive: timed out waiting for value")

// Cell holds at most one value and lets callers wait for it to be set.
//
// Every Set and Clear is also published on the Cell's Feed; Clear publishes
// the zero value of T.
type Cell[T any] struct {
	writeMu sync.Mutex // orders Set/Clear with their Feed publication

	mu      sync.Mutex
	value   T
	set     bool
	changed chan struct{}
	feed    *Feed[T]
}

// NewCell creates an empty Cell.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{
		changed: make(chan struct{}),
		feed:    NewFeed[T](),
	}
}

// Set stores v and wakes every waiter. It returns the previous value, if any.
func (c *Cell[T]) Set(v T) (prev T, had bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	prev, had = c.value, c.set
	c.value = v
	c.set = true
	c.signalLocked()
	c.mu.Unlock()

	c.feed.Publish(v)
	return prev, had
}

// Clear empties the Cell. It returns the value that was held, if any.
func (c *Cell[T]) Clear() (prev T, had bool) {
	var zero T

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	prev, had = c.value, c.set
	c.value = zero
	c.set = false
	c.signalLocked()
	c.mu.Unlock()

	c.feed.Publish(zero)
	return prev, had
}

// Get returns the current value without waiting.
func (c *Cell[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.set
}

// Await returns the current value, waiting up to timeout for one to be set.
// It returns ErrTimeout when the timeout elapses and ctx.Err() when ctx ends
// first.
func (c *Cell[T]) Await(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.set {
			v := c.value
			c.mu.Unlock()
			return v, nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Feed returns the Feed that mirrors the Cell's contents.
func (c *Cell[T]) Feed() *Feed[T] {
	return c.feed
}

// signalLocked wakes all current waiters by closing the change channel and
// installing a fresh one. Callers must hold c.mu.
func (c *Cell[T]) signalLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
