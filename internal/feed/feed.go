// Package feed distributes values from one writer to any number of readers
// without blocking either side.
//
// Two shapes are provided:
//
//   - [Latest]: a single slot where the newest value replaces the previous
//     one. Readers that lag simply observe the most recent value.
//   - [Log]: an ordered append log with reset epochs. Every reader keeps its
//     own [Cursor] and drains new items at its own cadence.
//
// Both publish by swapping an immutable snapshot through an atomic pointer,
// so readers never take a lock and never observe a half-written value.
// Each publish also closes a broadcast channel, which lets readers block
// until something changes instead of polling.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
)

type latestEntry[T any] struct {
	val     T
	version uint64
	changed chan struct{}
}

// Latest holds the most recently published value.
type Latest[T any] struct {
	mu  sync.Mutex // serializes writers only
	cur atomic.Pointer[latestEntry[T]]
}

func NewLatest[T any]() *Latest[T] {
	l := &Latest[T]{}
	l.cur.Store(&latestEntry[T]{changed: make(chan struct{})})
	return l
}

// Store publishes v, replacing the previous value.
func (l *Latest[T]) Store(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.cur.Load()
	l.cur.Store(&latestEntry[T]{val: v, version: old.version + 1, changed: make(chan struct{})})
	close(old.changed)
}

// Load returns the current value and its version. Version 0 means nothing
// has been stored yet.
func (l *Latest[T]) Load() (T, uint64) {
	e := l.cur.Load()
	return e.val, e.version
}

func (l *Latest[T]) Version() uint64 {
	return l.cur.Load().version
}

// Changed returns a channel that is closed by the next Store.
func (l *Latest[T]) Changed() <-chan struct{} {
	return l.cur.Load().changed
}

// Wait blocks until a value newer than version is stored.
func (l *Latest[T]) Wait(ctx context.Context, version uint64) (T, uint64, error) {
	for {
		e := l.cur.Load()
		if e.version > version {
			return e.val, e.version, nil
		}
		select {
		case <-e.changed:
		case <-ctx.Done():
			var zero T
			return zero, version, ctx.Err()
		}
	}
}

type logState[T any] struct {
	epoch   uint64
	items   []T
	changed chan struct{}
}

// Cursor is a reader's position in a Log. The zero Cursor reads from the
// start of the current epoch.
type Cursor struct {
	Epoch uint64
	Next  int
}

// Log is an append-only sequence that can be reset.
//
// An epoch keeps every item until the next Reset, so memory grows linearly
// with the records of one run. For stats that is one small struct per
// generation; a solver left running for days should be resubmitted to
// start a fresh epoch.
type Log[T any] struct {
	mu  sync.Mutex // serializes writers only
	cur atomic.Pointer[logState[T]]
}

func NewLog[T any]() *Log[T] {
	l := &Log[T]{}
	l.cur.Store(&logState[T]{changed: make(chan struct{})})
	return l
}

// Append adds v at the end of the current epoch.
func (l *Log[T]) Append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.cur.Load()
	// Readers only see old.items[:len], so writing past it is invisible to them.
	items := append(old.items, v)
	l.cur.Store(&logState[T]{epoch: old.epoch, items: items, changed: make(chan struct{})})
	close(old.changed)
}

// Reset discards every item and starts a new epoch.
func (l *Log[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.cur.Load()
	l.cur.Store(&logState[T]{epoch: old.epoch + 1, changed: make(chan struct{})})
	close(old.changed)
}

func (l *Log[T]) Epoch() uint64 { return l.cur.Load().epoch }
func (l *Log[T]) Len() int      { return len(l.cur.Load().items) }

// Snapshot returns every item of the current epoch. The slice must not be
// modified.
func (l *Log[T]) Snapshot() []T {
	s := l.cur.Load()
	return s.items[:len(s.items):len(s.items)]
}

// Since returns the items appended after c. When the log was reset after c
// was taken, reset is true and items start at the beginning of the new epoch.
func (l *Log[T]) Since(c Cursor) (items []T, reset bool, next Cursor) {
	s := l.cur.Load()
	n := len(s.items)

	start := c.Next
	if c.Epoch != s.epoch {
		reset = true
		start = 0
	}
	if start > n {
		start = n
	}
	return s.items[start:n:n], reset, Cursor{Epoch: s.epoch, Next: n}
}

// Changed returns a channel that is closed by the next Append or Reset.
func (l *Log[T]) Changed() <-chan struct{} {
	return l.cur.Load().changed
}

// Wait blocks until the log moves past c, then behaves like Since.
func (l *Log[T]) Wait(ctx context.Context, c Cursor) ([]T, bool, Cursor, error) {
	for {
		s := l.cur.Load()
		if s.epoch != c.Epoch || len(s.items) > c.Next {
			items, reset, next := l.Since(c)
			return items, reset, next, nil
		}
		select {
		case <-s.changed:
		case <-ctx.Done():
			return nil, false, c, ctx.Err()
		}
	}
}
