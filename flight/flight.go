// Package flight coalesces concurrent fetches for the same key into one
// execution. The first caller runs the work; every concurrent caller for the
// same key joins the in-flight token and receives the identical result or
// error. The token is removed on every exit path, so a failed or cancelled
// fetch never leaves a leaked registration behind.
package flight

import (
	"context"
	"sync"
)

// token is one outstanding fetch. done is closed exactly once, after val/err
// are set.
type token[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Group coordinates single-flight execution per key. The zero value is ready
// to use.
type Group[V any] struct {
	mu      sync.Mutex
	flights map[string]*token[V]
}

// Do executes work for key unless another execution is already in flight, in
// which case it waits for that one and returns its outcome. The work function
// itself is never passed a deadline here; cancelling ctx abandons the join
// but does not stop the in-flight work for other callers.
func (g *Group[V]) Do(ctx context.Context, key string, work func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.flights == nil {
		g.flights = make(map[string]*token[V])
	}
	if t, ok := g.flights[key]; ok {
		g.mu.Unlock()
		return g.join(ctx, t)
	}
	g.mu.Unlock()

	// Construct the token outside the lock, then re-check: another caller
	// may have registered for this key in the meantime, in which case the
	// freshly built token is discarded and we join the winner.
	t := &token[V]{done: make(chan struct{})}
	g.mu.Lock()
	if winner, ok := g.flights[key]; ok {
		g.mu.Unlock()
		return g.join(ctx, winner)
	}
	g.flights[key] = t
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		// Forget may have dropped this token already and a new execution
		// may own the key; only remove our own registration.
		if cur, ok := g.flights[key]; ok && cur == t {
			delete(g.flights, key)
		}
		g.mu.Unlock()
		close(t.done)
	}()

	t.val, t.err = work()
	return t.val, t.err
}

// join waits for an in-flight token or the caller's context, whichever
// resolves first.
func (g *Group[V]) join(ctx context.Context, t *token[V]) (V, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Forget drops the registration for key, letting the next Do start a fresh
// execution. Waiters already joined to the old token still receive its
// result.
func (g *Group[V]) Forget(key string) {
	g.mu.Lock()
	delete(g.flights, key)
	g.mu.Unlock()
}

// InFlight returns the number of outstanding executions.
func (g *Group[V]) InFlight() int {
	g.mu.Lock()
	n := len(g.flights)
	g.mu.Unlock()
	return n
}
