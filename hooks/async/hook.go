// Package asynchook decouples hook sinks from the dispatcher's hot paths:
// events are queued and delivered by worker goroutines; a full queue drops.
package asynchook

import (
	"sync"

	"github.com/nutrilog/datasync"
)

type Hooks struct {
	inner datasync.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ datasync.Hooks = (*Hooks)(nil)

func New(inner datasync.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) StaleServed(id string, cause error) {
	h.try(func() { h.inner.StaleServed(id, cause) })
}
func (h *Hooks) PendingDropped(id, kind string, cause error) {
	h.try(func() { h.inner.PendingDropped(id, kind, cause) })
}
func (h *Hooks) QuerySelfHeal(storageKey, reason string) {
	h.try(func() { h.inner.QuerySelfHeal(storageKey, reason) })
}
func (h *Hooks) ProviderSetRejected(storageKey string) {
	h.try(func() { h.inner.ProviderSetRejected(storageKey) })
}
