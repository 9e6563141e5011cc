// Package datasync is the offline-first data-access core of a personal
// nutrition-tracking client. It mediates every read and write between the
// UI, an on-device store, and a remote document database:
//
//   - reads are served from the local store first, then a typed TTL/LRU
//     cache, then a single-flight fetch against the remote store wrapped in
//     bounded retry/backoff;
//   - writes persist locally immediately and enqueue a pending operation
//     that a background sync drain later pushes to the remote store,
//     collapsed most-recent-wins per entity;
//   - all asynchronous work is fenced by an auth generation counter so a
//     sign-out mid-operation can never commit one user's data into caches
//     now serving another.
//
// Components:
//   - store: collaborator interfaces (LocalStore, RemoteStore,
//     IdentityProvider).
//   - memcache: typed TTL+LRU cache with explicit eviction.
//   - flight: single-flight coordinator.
//   - retry: exponential backoff with retryable/terminal classification.
//   - fence: auth generation fence.
//   - querycache: provider-backed, generation-stamped query-result cache.
//
// Typical wiring:
//
//	local, _ := sqlite.Open(dbPath)
//	syncer, _ := datasync.New[Meal](datasync.Options[Meal]{
//	    Collection: "meals",
//	    Local:      local,
//	    Remote:     remote,   // gRPC-status-speaking document store
//	    Identity:   authProvider,
//	    Codec:      codec.JSON[Meal]{},
//	})
//	defer syncer.Close(ctx)
package datasync
