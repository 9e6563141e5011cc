// Package querycache caches remote query results as generation-stamped byte
// frames in a pluggable provider (ristretto, bigcache, redis). A frame is
// valid only while the auth generation it was fetched under is still
// current: after a sign-out/sign-in every cached query misses and self-heals
// without enumerating keys.
package querycache

import (
	"context"
	"fmt"
	"time"

	"github.com/nutrilog/datasync/codec"
	"github.com/nutrilog/datasync/fence"
	"github.com/nutrilog/datasync/internal/util"
	"github.com/nutrilog/datasync/internal/wire"
	"github.com/nutrilog/datasync/provider"
)

// Entry is one decoded member of a cached result set, in result order.
type Entry[V any] struct {
	ID    string
	Value V
}

// Options configure a query cache. Collection, Provider and Codec are
// required.
type Options[V any] struct {
	Collection string
	Provider   provider.Provider
	Codec      codec.Codec[V]
	TTL        time.Duration // 0 => 10m

	// OnSelfHeal fires when a frame is dropped on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}.
	OnSelfHeal func(storageKey, reason string)
	// OnSetRejected fires when the provider refused a write under pressure.
	OnSetRejected func(storageKey string)
}

// Cache stores query result sets. Safe for concurrent use.
type Cache[V any] struct {
	collection    string
	provider      provider.Provider
	codec         codec.Codec[V]
	ttl           time.Duration
	onSelfHeal    func(string, string)
	onSetRejected func(string)
}

func New[V any](opts Options[V]) (*Cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("querycache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("querycache: codec is required")
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("querycache: collection is required")
	}
	c := &Cache[V]{
		collection:    opts.Collection,
		provider:      opts.Provider,
		codec:         opts.Codec,
		ttl:           opts.TTL,
		onSelfHeal:    opts.OnSelfHeal,
		onSetRejected: opts.OnSetRejected,
	}
	if c.ttl <= 0 {
		c.ttl = 10 * time.Minute
	}
	if c.onSelfHeal == nil {
		c.onSelfHeal = func(string, string) {}
	}
	if c.onSetRejected == nil {
		c.onSetRejected = func(string) {}
	}
	return c, nil
}

// Get returns the cached result set for queryKey if present and stamped with
// the given generation. Corrupt, undecodable, or stale frames are deleted
// and reported as a miss.
func (c *Cache[V]) Get(ctx context.Context, queryKey string, gen fence.Generation) ([]Entry[V], bool, error) {
	k := c.storageKey(queryKey)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	frameGen, items, err := wire.DecodeList(raw)
	if err != nil {
		c.selfHeal(ctx, k, "corrupt")
		return nil, false, nil
	}
	if frameGen != uint64(gen) {
		c.selfHeal(ctx, k, "gen_mismatch")
		return nil, false, nil
	}
	out := make([]Entry[V], 0, len(items))
	for _, it := range items {
		v, err := c.codec.Decode(it.Payload)
		if err != nil {
			c.selfHeal(ctx, k, "value_decode")
			return nil, false, nil
		}
		out = append(out, Entry[V]{ID: it.ID, Value: v})
	}
	return out, true, nil
}

// Set stores a result set stamped with the generation it was fetched under.
// Callers verify the generation is still current before committing; a racing
// identity change is caught again at read time.
func (c *Cache[V]) Set(ctx context.Context, queryKey string, entries []Entry[V], gen fence.Generation) error {
	items := make([]wire.Item, 0, len(entries))
	for _, e := range entries {
		payload, err := c.codec.Encode(e.Value)
		if err != nil {
			return err
		}
		items = append(items, wire.Item{ID: e.ID, Payload: payload})
	}
	frame := wire.EncodeList(uint64(gen), items)
	k := c.storageKey(queryKey)
	ok, err := c.provider.Set(ctx, k, frame, int64(len(frame)), c.ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.onSetRejected(k)
	}
	return nil
}

// Invalidate drops the cached result set for queryKey.
func (c *Cache[V]) Invalidate(ctx context.Context, queryKey string) error {
	return c.provider.Del(ctx, c.storageKey(queryKey))
}

func (c *Cache[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = c.provider.Del(ctx, storageKey)
	c.onSelfHeal(storageKey, reason)
}

func (c *Cache[V]) storageKey(queryKey string) string {
	return util.QueryKey("list:"+c.collection, queryKey)
}
