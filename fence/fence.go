// Package fence implements the auth generation fence: a monotonically
// increasing generation counter tied to the current identity. Long-running
// work captures the generation up front and re-checks it at every
// checkpoint, so results computed for one identity are never committed into
// caches that now serve another.
package fence

import (
	"errors"
	"sync"
)

var (
	// ErrNotAuthenticated is returned when an operation requires an
	// identity and none is present.
	ErrNotAuthenticated = errors.New("fence: not authenticated")

	// ErrAuthStateChanged is returned when the generation advanced since it
	// was captured, i.e. a sign-out/sign-in happened mid-operation.
	ErrAuthStateChanged = errors.New("fence: auth state changed")
)

// Generation is an opaque snapshot of the fence counter.
type Generation uint64

// Fence holds the generation counter and the current identity.
// The zero value is not usable; construct with New.
type Fence struct {
	mu       sync.RWMutex
	gen      uint64
	identity string
	hasID    bool
	subs     map[int]func(id string, ok bool)
	nextSub  int
}

// New constructs a fence seeded with the current identity (ok=false means
// signed out). The generation starts at 0 and only ever increases.
func New(identity string, ok bool) *Fence {
	return &Fence{
		identity: identity,
		hasID:    ok,
		subs:     make(map[int]func(string, bool)),
	}
}

// Capture returns the current generation. Callers hold it across suspension
// points and validate with Unchanged before committing results.
func (f *Fence) Capture() Generation {
	f.mu.RLock()
	g := f.gen
	f.mu.RUnlock()
	return Generation(g)
}

// Unchanged returns ErrAuthStateChanged if the generation advanced since the
// given snapshot was captured.
func (f *Fence) Unchanged(since Generation) error {
	f.mu.RLock()
	g := f.gen
	f.mu.RUnlock()
	if Generation(g) != since {
		return ErrAuthStateChanged
	}
	return nil
}

// RequireIdentity returns the current identity or ErrNotAuthenticated.
func (f *Fence) RequireIdentity() (string, error) {
	f.mu.RLock()
	id, ok := f.identity, f.hasID
	f.mu.RUnlock()
	if !ok {
		return "", ErrNotAuthenticated
	}
	return id, nil
}

// Identity returns the current identity without failing.
func (f *Fence) Identity() (string, bool) {
	f.mu.RLock()
	id, ok := f.identity, f.hasID
	f.mu.RUnlock()
	return id, ok
}

// OnIdentityChanged advances the generation, swaps the identity and notifies
// subscribers. Wire it to the identity provider's change events. Subscriber
// callbacks run outside the fence lock.
func (f *Fence) OnIdentityChanged(id string, ok bool) {
	f.mu.Lock()
	f.gen++
	f.identity = id
	f.hasID = ok
	subs := make([]func(string, bool), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(id, ok)
	}
}

// Subscribe registers a callback invoked after every identity change.
// The returned cancel func unregisters it.
func (f *Fence) Subscribe(fn func(id string, ok bool)) (cancel func()) {
	f.mu.Lock()
	n := f.nextSub
	f.nextSub++
	f.subs[n] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, n)
		f.mu.Unlock()
	}
}
