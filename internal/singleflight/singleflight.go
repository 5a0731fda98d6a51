// Package singleflight runs at most one call per key and lets every other
// caller for that key wait on the same outcome.
package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
)

// Ticket represents one in-flight call. It resolves exactly once.
type Ticket[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters atomic.Int32
}

// Wait blocks until the call resolves or ctx is done. Giving up does not
// affect the call itself, other waiters still receive its result.
func (t *Ticket[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Waiters is the number of callers attached to the ticket, owner included.
func (t *Ticket[T]) Waiters() int {
	return int(t.waiters.Load())
}

// Group manages tickets by key.
type Group[T any] struct {
	mu sync.Mutex
	m  map[string]*Ticket[T]
}

func New[T any]() *Group[T] {
	return &Group[T]{m: make(map[string]*Ticket[T])}
}

// Start attaches to the ticket for key, or creates one and runs fn on a new
// goroutine. started reports whether this caller created the ticket.
// fn runs detached from any caller, so it must bring its own context.
func (g *Group[T]) Start(key string, fn func() (T, error)) (t *Ticket[T], started bool) {
	g.mu.Lock()
	if t, ok := g.m[key]; ok {
		t.waiters.Add(1)
		g.mu.Unlock()
		return t, false
	}

	t = &Ticket[T]{done: make(chan struct{})}
	t.waiters.Add(1)
	g.m[key] = t
	g.mu.Unlock()

	go g.run(key, t, fn)
	return t, true
}

func (g *Group[T]) run(key string, t *Ticket[T], fn func() (T, error)) {
	defer func() {
		// forget the key before releasing waiters, so a caller arriving after
		// resolution starts a fresh call instead of reusing a stale outcome
		g.mu.Lock()
		if g.m[key] == t {
			delete(g.m, key)
		}
		g.mu.Unlock()
		close(t.done)
	}()
	t.val, t.err = fn()
}

// InFlight reports whether a call for key is currently running.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}
