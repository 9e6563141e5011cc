package datasync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nutrilog/datasync/codec"
	"github.com/nutrilog/datasync/fence"
	"github.com/nutrilog/datasync/flight"
	"github.com/nutrilog/datasync/memcache"
	"github.com/nutrilog/datasync/querycache"
	"github.com/nutrilog/datasync/retry"
	"github.com/nutrilog/datasync/store"
)

// dispatcher composes the offline-first read/write paths: local store ->
// TTL/LRU cache -> single-flight -> retry -> remote, fenced by the auth
// generation. One instance per collection.
type dispatcher[V Entity] struct {
	collection string
	local      store.LocalStore
	remote     store.RemoteStore
	codec      codec.Codec[V]
	log        Logger
	hooks      Hooks

	fence       *fence.Fence
	mem         *memcache.Cache[V]
	flights     flight.Group[V]
	listFlights flight.Group[[]V]
	exec        *retry.Executor
	queries     *querycache.Cache[V] // nil when no QueryProvider
	pending     *pendingQueue
	subs        *subscribers
	batchSize   int

	unsubIdentity func()
	closed        chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup

	// drain coordination
	syncMu      sync.Mutex
	syncRunning bool
	syncAgain   bool
}

func newDispatcher[V Entity](opts Options[V]) (*dispatcher[V], error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("datasync: collection is required")
	}
	if opts.Local == nil {
		return nil, fmt.Errorf("datasync: local store is required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("datasync: remote store is required")
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("datasync: identity provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("datasync: codec is required")
	}

	d := &dispatcher[V]{
		collection: opts.Collection,
		local:      opts.Local,
		remote:     opts.Remote,
		codec:      opts.Codec,
		pending:    newPendingQueue(),
		subs:       newSubscribers(),
		closed:     make(chan struct{}),
	}

	d.log = coalesce[Logger](opts.Logger, NopLogger{})
	d.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	d.batchSize = coalesce[int](opts.SyncBatchSize, 10)

	cacheTTL := coalesce[time.Duration](opts.CacheTTL, 5*time.Minute)
	cacheCap := coalesce[int](opts.CacheCapacity, 256)
	d.mem = memcache.New[V](cacheTTL, cacheCap)
	d.exec = retry.New(opts.Retry)

	id, ok := opts.Identity.CurrentIdentity()
	d.fence = fence.New(id, ok)
	d.unsubIdentity = opts.Identity.Subscribe(d.fence.OnIdentityChanged)
	d.fence.Subscribe(d.onIdentityChanged)

	if opts.QueryProvider != nil {
		qc, err := querycache.New[V](querycache.Options[V]{
			Collection:    opts.Collection,
			Provider:      opts.QueryProvider,
			Codec:         opts.Codec,
			TTL:           opts.QueryTTL,
			OnSelfHeal:    d.hooks.QuerySelfHeal,
			OnSetRejected: d.hooks.ProviderSetRejected,
		})
		if err != nil {
			return nil, err
		}
		d.queries = qc
	}

	return d, nil
}

// onIdentityChanged tears down per-identity state. The generation already
// advanced, so in-flight work fails its fence checks and cached query frames
// self-heal on their next read.
func (d *dispatcher[V]) onIdentityChanged(string, bool) {
	d.mem.Clear()
	d.pending.clear()
	// syncMu orders this Add against Close: once Close has closed the
	// channel under the same lock, no new background work can start.
	d.syncMu.Lock()
	select {
	case <-d.closed:
		d.syncMu.Unlock()
		return
	default:
	}
	d.wg.Add(1)
	d.syncMu.Unlock()
	go func() {
		defer d.wg.Done()
		if err := d.local.Clear(context.Background(), d.collection); err != nil {
			d.log.Error("local clear on identity change failed", Fields{"collection": d.collection, "err": err})
		}
		d.subs.publish(Event{Type: EventCleared})
	}()
}

func (d *dispatcher[V]) ReadThrough(ctx context.Context, id string) (V, error) {
	var zero V
	if id == "" {
		return zero, fmt.Errorf("datasync: id is required")
	}

	// Offline source of truth first.
	payload, ok, err := d.local.Get(ctx, d.collection, id)
	if err != nil {
		d.log.Warn("local get failed; falling through to fetch", Fields{"id": id, "err": err})
	} else if ok {
		v, derr := d.codec.Decode(payload)
		if derr == nil {
			d.TriggerSync()
			return v, nil
		}
		d.log.Warn("undecodable local payload; refetching", Fields{"id": id, "err": derr})
	}

	if v, ok := d.mem.Get(id); ok {
		return v, nil
	}

	v, err := d.flights.Do(ctx, id, func() (V, error) {
		return d.fetchRemote(ctx, id)
	})
	if err != nil {
		// Non-critical reads prefer an expired entry over failing outright.
		// Auth and cancellation errors must reach the caller unchanged.
		if stale, ok := d.mem.GetStale(id); ok && staleEligible(err) {
			d.hooks.StaleServed(id, err)
			d.log.Debug("serving stale entry after failed fetch", Fields{"id": id, "err": err})
			return stale, nil
		}
		return zero, err
	}
	return v, nil
}

// staleEligible reports whether a failed fetch may be answered from an
// expired cache entry.
func staleEligible(err error) bool {
	return !errors.Is(err, fence.ErrAuthStateChanged) &&
		!errors.Is(err, fence.ErrNotAuthenticated) &&
		!errors.Is(err, context.Canceled)
}

// fetchRemote runs inside the single-flight token: retry-wrapped remote get,
// fence-checked before and after the network call, committed to cache and
// local store only when neither cancellation nor an identity change raced
// the fetch.
func (d *dispatcher[V]) fetchRemote(ctx context.Context, id string) (V, error) {
	var zero V
	gen := d.fence.Capture()
	if _, err := d.fence.RequireIdentity(); err != nil {
		return zero, err
	}

	payload, err := retry.Do(ctx, d.exec, func(ctx context.Context) ([]byte, error) {
		if err := d.fence.Unchanged(gen); err != nil {
			return nil, err
		}
		return d.remote.Get(ctx, d.collection, id)
	})
	if err != nil {
		return zero, err
	}

	v, err := d.codec.Decode(payload)
	if err != nil {
		return zero, fmt.Errorf("decode %s/%s: %w", d.collection, id, err)
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := d.fence.Unchanged(gen); err != nil {
		return zero, err
	}

	d.mem.Put(id, v)
	if err := d.local.Save(ctx, d.collection, id, payload); err != nil {
		// Cache commit already happened; the next offline read just misses.
		d.log.Warn("local import of fetched entity failed", Fields{"id": id, "err": err})
	}
	return v, nil
}

func (d *dispatcher[V]) ReadQuery(ctx context.Context, q store.Query) ([]V, error) {
	// Match-all queries are served from the local store when it has data.
	if q.MatchAll() {
		if recs, err := d.local.List(ctx, d.collection); err == nil && len(recs) > 0 {
			out, derr := d.decodeRecords(recs)
			if derr == nil {
				d.TriggerSync()
				return out, nil
			}
			d.log.Warn("undecodable local records; refetching", Fields{"err": derr})
		}
	}

	key := q.CacheKey()
	if d.queries != nil {
		gen := d.fence.Capture()
		if entries, ok, err := d.queries.Get(ctx, key, gen); err == nil && ok {
			out := make([]V, len(entries))
			for i, e := range entries {
				out[i] = e.Value
			}
			return out, nil
		}
	}

	return d.listFlights.Do(ctx, key, func() ([]V, error) {
		return d.queryRemote(ctx, q, key)
	})
}

func (d *dispatcher[V]) queryRemote(ctx context.Context, q store.Query, key string) ([]V, error) {
	gen := d.fence.Capture()
	if _, err := d.fence.RequireIdentity(); err != nil {
		return nil, err
	}

	recs, err := retry.Do(ctx, d.exec, func(ctx context.Context) ([]store.Record, error) {
		if err := d.fence.Unchanged(gen); err != nil {
			return nil, err
		}
		return d.remote.Query(ctx, d.collection, q)
	})
	if err != nil {
		return nil, err
	}

	out := make([]V, 0, len(recs))
	entries := make([]querycache.Entry[V], 0, len(recs))
	for _, r := range recs {
		v, derr := d.codec.Decode(r.Payload)
		if derr != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", d.collection, r.ID, derr)
		}
		out = append(out, v)
		entries = append(entries, querycache.Entry[V]{ID: r.ID, Value: v})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.fence.Unchanged(gen); err != nil {
		return nil, err
	}

	if d.queries != nil {
		if err := d.queries.Set(ctx, key, entries, gen); err != nil {
			d.log.Warn("query cache set failed", Fields{"key": key, "err": err})
		}
	}

	// Import for future offline reads.
	for i, r := range recs {
		d.mem.Put(r.ID, out[i])
		if err := d.local.Save(ctx, d.collection, r.ID, r.Payload); err != nil {
			d.log.Warn("local import of query result failed", Fields{"id": r.ID, "err": err})
		}
	}
	return out, nil
}

func (d *dispatcher[V]) decodeRecords(recs []store.Record) ([]V, error) {
	out := make([]V, 0, len(recs))
	for _, r := range recs {
		v, err := d.codec.Decode(r.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *dispatcher[V]) WriteLocal(ctx context.Context, v V) error {
	id := v.EntityID()
	if id == "" {
		return fmt.Errorf("datasync: entity id is required")
	}
	payload, err := d.codec.Encode(v)
	if err != nil {
		return err
	}

	// Create vs update: did the local store already know this entity?
	_, existed, err := d.local.Get(ctx, d.collection, id)
	if err != nil {
		return err
	}
	if err := d.local.Save(ctx, d.collection, id, payload); err != nil {
		return err
	}
	d.mem.Put(id, v)

	kind := opCreate
	if existed {
		kind = opUpdate
	}
	d.pending.enqueue(pendingOp{id: id, kind: kind, payload: payload, submittedAt: time.Now()})
	d.subs.publish(Event{Type: EventUpdated, ID: id})
	return nil
}

func (d *dispatcher[V]) DeleteLocal(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("datasync: id is required")
	}
	if err := d.local.Delete(ctx, d.collection, id); err != nil {
		return err
	}
	d.mem.Invalidate(id)
	d.pending.enqueue(pendingOp{id: id, kind: opDelete, submittedAt: time.Now()})
	d.subs.publish(Event{Type: EventDeleted, ID: id})
	return nil
}

// TriggerSync schedules a background drain. Concurrent triggers coalesce
// into at most one running drain plus one follow-up pass.
func (d *dispatcher[V]) TriggerSync() {
	d.syncMu.Lock()
	select {
	case <-d.closed:
		d.syncMu.Unlock()
		return
	default:
	}
	if d.syncRunning {
		d.syncAgain = true
		d.syncMu.Unlock()
		return
	}
	if d.pending.queuedSize() == 0 {
		d.syncMu.Unlock()
		return
	}
	d.syncRunning = true
	d.wg.Add(1)
	d.syncMu.Unlock()

	go d.drainLoop()
}

func (d *dispatcher[V]) drainLoop() {
	defer d.wg.Done()
	for {
		promoted, halted := d.drain()

		d.syncMu.Lock()
		rerun := (promoted || d.syncAgain) && !halted && d.pending.queuedSize() > 0
		d.syncAgain = false
		if !rerun {
			d.syncRunning = false
			d.syncMu.Unlock()
			return
		}
		d.syncMu.Unlock()
	}
}

// drain pushes queued operations in batches. Returns promoted=true when a
// follower entered the queue (another pass is worthwhile) and halted=true
// when the drain should stop (retryable outage or fence trip); whatever
// remains queued waits for the next trigger.
func (d *dispatcher[V]) drain() (promoted, halted bool) {
	ctx := context.Background()
	gen := d.fence.Capture()
	ops := d.pending.beginDrain()

	for start := 0; start < len(ops); start += d.batchSize {
		end := start + d.batchSize
		if end > len(ops) {
			end = len(ops)
		}
		batch := ops[start:end]

		// A sign-out mid-drain abandons the rest; the queue was cleared by
		// the identity-change handler.
		if err := d.fence.Unchanged(gen); err != nil {
			for _, op := range ops[start:] {
				d.pending.requeue(op.id)
			}
			return promoted, true
		}

		err := d.push(ctx, batch)
		if err == nil {
			for _, op := range batch {
				if d.pending.complete(op.id) {
					promoted = true
				}
				d.subs.publish(Event{Type: EventSynced, ID: op.id})
			}
			continue
		}

		if retry.IsRetryable(err) {
			d.log.Warn("sync push failed; operations stay queued", Fields{"count": len(ops) - start, "err": err})
			for _, op := range ops[start:] {
				d.pending.requeue(op.id)
			}
			return promoted, true
		}

		// Terminal: drop the batch, surface per-op errors.
		for _, op := range batch {
			if d.pending.drop(op.id) {
				promoted = true
			}
			serr := &SyncError{ID: op.id, Kind: op.kind.String(), Err: err}
			d.hooks.PendingDropped(op.id, op.kind.String(), err)
			d.subs.publish(Event{Type: EventSyncFailed, ID: op.id, Err: serr})
			d.log.Error("pending operation dropped", Fields{"id": op.id, "kind": op.kind.String(), "err": err})
		}
	}
	return promoted, false
}

// push sends one batch through the retry executor. Single operations go
// straight to Set/Delete; larger batches use BatchCommit.
func (d *dispatcher[V]) push(ctx context.Context, batch []pendingOp) error {
	_, err := retry.Do(ctx, d.exec, func(ctx context.Context) (struct{}, error) {
		if len(batch) == 1 {
			op := batch[0]
			switch op.kind {
			case opDelete:
				return struct{}{}, d.remote.Delete(ctx, d.collection, op.id)
			default:
				return struct{}{}, d.remote.Set(ctx, d.collection, op.id, op.payload, op.kind == opUpdate)
			}
		}
		ops := make([]store.BatchOp, 0, len(batch))
		for _, op := range batch {
			bo := store.BatchOp{Collection: d.collection, ID: op.id}
			if op.kind == opDelete {
				bo.Kind = store.BatchDelete
			} else {
				bo.Kind = store.BatchSet
				bo.Payload = op.payload
				bo.Merge = op.kind == opUpdate
			}
			ops = append(ops, bo)
		}
		return struct{}{}, d.remote.BatchCommit(ctx, ops)
	})
	return err
}

func (d *dispatcher[V]) Pending() int {
	return d.pending.size()
}

func (d *dispatcher[V]) ClearAll(ctx context.Context) error {
	d.mem.Clear()
	d.pending.clear()
	if err := d.local.Clear(ctx, d.collection); err != nil {
		return err
	}
	d.subs.publish(Event{Type: EventCleared})
	return nil
}

func (d *dispatcher[V]) Subscribe(buffer int) (<-chan Event, func()) {
	return d.subs.subscribe(buffer)
}

func (d *dispatcher[V]) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		if d.unsubIdentity != nil {
			d.unsubIdentity()
		}
		// Closing under syncMu guarantees no wg.Add can slip in between the
		// closed-channel check and Wait.
		d.syncMu.Lock()
		close(d.closed)
		d.syncMu.Unlock()
		d.wg.Wait()
		d.subs.closeAll()
	})
	return nil
}
