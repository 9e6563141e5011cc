package datasync

import (
	"context"
	"time"

	"github.com/nutrilog/datasync/codec"
	"github.com/nutrilog/datasync/provider"
	"github.com/nutrilog/datasync/retry"
	"github.com/nutrilog/datasync/store"
)

// Entity is anything the dispatcher can track. EntityID must be non-empty
// and stable for the entity's lifetime.
type Entity interface {
	EntityID() string
}

// Syncer is the offline-first data-access surface exposed to the UI layer
// and background sync worker. One Syncer instance owns all caches and queues
// for its collection; construct once, tear down with Close.
type Syncer[V Entity] interface {
	// ReadThrough returns the entity, serving local storage first, then the
	// in-memory cache, then a single-flight remote fetch. A local hit also
	// triggers a background sync of pending writes.
	ReadThrough(ctx context.Context, id string) (V, error)

	// ReadQuery returns a query's result set: local store (match-all
	// queries only), then the query cache, then a single-flight remote
	// query whose results are imported into the local store.
	ReadQuery(ctx context.Context, q store.Query) ([]V, error)

	// WriteLocal persists the entity locally and enqueues a pending push.
	// It never blocks on the network.
	WriteLocal(ctx context.Context, v V) error

	// DeleteLocal removes the entity locally and enqueues a pending delete.
	DeleteLocal(ctx context.Context, id string) error

	// TriggerSync schedules a background drain of pending operations.
	// Fire-and-forget; concurrent triggers coalesce.
	TriggerSync()

	// Pending returns the number of operations awaiting sync.
	Pending() int

	// ClearAll wipes the in-memory cache, the pending queue, and the local
	// collection. Called on sign-out; the accompanying generation bump
	// invalidates cached query frames.
	ClearAll(ctx context.Context) error

	// Subscribe returns a channel of cache-invalidation/update events and a
	// cancel func. Sends never block; slow consumers drop events.
	Subscribe(buffer int) (<-chan Event, func())

	// Close stops background work and unhooks the identity subscription.
	// It does not close the collaborators; the host app owns them.
	Close(ctx context.Context) error
}

// Options configure a Syncer. Collection, Local, Remote, Identity and Codec
// are required; the rest default sensibly.
type Options[V Entity] struct {
	// Required
	Collection string
	Local      store.LocalStore
	Remote     store.RemoteStore
	Identity   store.IdentityProvider
	Codec      codec.Codec[V]

	// QueryProvider enables the provider-backed query-result cache
	// (see querycache). Nil disables it; queries then always fall through
	// to the remote store on a local miss.
	QueryProvider provider.Provider

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	CacheTTL      time.Duration // entity cache freshness; 0 => 5m
	CacheCapacity int           // entity cache bound; 0 => 256
	QueryTTL      time.Duration // query cache TTL; 0 => 10m
	Retry         retry.Config  // zero => 3 attempts / 15s
	SyncBatchSize int           // ops per BatchCommit; 0 => 10
}

// New constructs a Syncer and subscribes it to identity changes.
func New[V Entity](opts Options[V]) (Syncer[V], error) {
	return newDispatcher[V](opts)
}
