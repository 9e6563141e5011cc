// Package store defines the collaborator capability sets consumed by the
// data-access core: the on-device persistent store (source of truth for
// offline reads), the remote document store, and the identity provider.
//
// The core depends only on these interfaces; concrete backends (SQLite,
// Firestore-style gRPC services, test fakes) are supplied by the host app.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is one persisted entity payload. Payloads are opaque bytes; the
// dispatcher owns (de)serialization via its Codec.
type Record struct {
	ID        string
	Payload   []byte
	UpdatedAt time.Time
}

// LocalStore is the on-device persistent store. All methods must be safe for
// concurrent use. Get returns (nil, false, nil) on miss.
type LocalStore interface {
	Save(ctx context.Context, collection, id string, payload []byte) error
	Get(ctx context.Context, collection, id string) ([]byte, bool, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]Record, error)
	// Clear removes every record in the collection (sign-out path).
	Clear(ctx context.Context, collection string) error
	Close(ctx context.Context) error
}

// RemoteStore is the remote document database. Implementations are expected
// to surface failures as gRPC status errors (google.golang.org/grpc/status);
// the retry executor classifies them into retryable vs terminal.
type RemoteStore interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Query(ctx context.Context, collection string, q Query) ([]Record, error)
	Set(ctx context.Context, collection, id string, payload []byte, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	BatchCommit(ctx context.Context, ops []BatchOp) error
}

// IdentityProvider exposes the current principal and identity-change events.
// Subscribe returns a cancel func that unregisters the callback. Callbacks
// must be invoked outside any provider-internal lock.
type IdentityProvider interface {
	CurrentIdentity() (id string, ok bool)
	Subscribe(fn func(id string, ok bool)) (cancel func())
}

// BatchKind discriminates BatchCommit operations.
type BatchKind uint8

const (
	BatchSet BatchKind = iota + 1
	BatchDelete
)

// BatchOp is one member of a RemoteStore.BatchCommit.
type BatchOp struct {
	Kind       BatchKind
	Collection string
	ID         string
	Payload    []byte
	Merge      bool
}

// Filter is a single remote query predicate, e.g. {"category", "==", "dairy"}.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query describes a remote collection query. The zero value matches the
// whole collection.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// MatchAll reports whether the query selects the entire collection.
func (q Query) MatchAll() bool {
	return len(q.Filters) == 0 && q.OrderBy == "" && q.Limit == 0
}

// CacheKey returns a canonical string for the query, stable across filter
// ordering, suitable for hashing into a cache key.
func (q Query) CacheKey() string {
	if q.MatchAll() {
		return "all"
	}
	parts := make([]string, 0, len(q.Filters)+2)
	for _, f := range q.Filters {
		parts = append(parts, fmt.Sprintf("f:%s%s%v", f.Field, f.Op, f.Value))
	}
	sort.Strings(parts)
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		parts = append(parts, "o:"+q.OrderBy+":"+dir)
	}
	if q.Limit > 0 {
		parts = append(parts, fmt.Sprintf("l:%d", q.Limit))
	}
	return strings.Join(parts, "|")
}
