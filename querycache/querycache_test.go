package querycache

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/nutrilog/datasync/codec"
	"github.com/nutrilog/datasync/internal/wire"
)

// memProvider is a plain in-memory byte store for tests. TTLs are ignored.
type memProvider struct {
	mu        sync.Mutex
	data      map[string][]byte
	rejectSet bool
	dels      []string
}

func newMemProvider() *memProvider {
	return &memProvider{data: make(map[string][]byte)}
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejectSet {
		return false, nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	p.data[key] = cp
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	p.dels = append(p.dels, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.data)
}

type meal struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
}

func newTestCache(t *testing.T, p *memProvider) *Cache[meal] {
	t.Helper()
	c, err := New(Options[meal]{
		Collection: "meals",
		Provider:   p,
		Codec:      codec.JSON[meal]{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSetGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	c := newTestCache(t, p)

	in := []Entry[meal]{
		{ID: "m1", Value: meal{Name: "oats", Calories: 350}},
		{ID: "m2", Value: meal{Name: "salad", Calories: 120}},
	}
	if err := c.Set(ctx, "date=2024-01-02", in, 3); err != nil {
		t.Fatalf("Set: %v", err)
	}

	out, ok, err := c.Get(ctx, "date=2024-01-02", 3)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(out) != 2 || out[0].ID != "m1" || out[1].Value.Name != "salad" {
		t.Fatalf("decoded entries: %+v", out)
	}
}

func TestMissOnAbsentKey(t *testing.T) {
	c := newTestCache(t, newMemProvider())
	if _, ok, err := c.Get(context.Background(), "nothing", 1); ok || err != nil {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}
}

func TestGenerationMismatchSelfHeals(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	var healed []string
	c, err := New(Options[meal]{
		Collection: "meals",
		Provider:   p,
		Codec:      codec.JSON[meal]{},
		OnSelfHeal: func(_, reason string) { healed = append(healed, reason) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Set(ctx, "q", []Entry[meal]{{ID: "m1", Value: meal{Name: "oats"}}}, 5); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Read under a newer generation: frame is stale.
	if _, ok, err := c.Get(ctx, "q", 6); ok || err != nil {
		t.Fatalf("stale frame: ok=%v err=%v", ok, err)
	}
	if len(healed) != 1 || healed[0] != "gen_mismatch" {
		t.Fatalf("self-heal reasons = %v, want [gen_mismatch]", healed)
	}
	if p.len() != 0 {
		t.Fatalf("stale frame should be deleted from the provider")
	}

	// The very next write repopulates under the new generation.
	if err := c.Set(ctx, "q", []Entry[meal]{{ID: "m1", Value: meal{Name: "oats"}}}, 6); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "q", 6); !ok {
		t.Fatalf("fresh frame should hit")
	}
}

func TestCorruptFrameSelfHeals(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	var healed []string
	c, err := New(Options[meal]{
		Collection: "meals",
		Provider:   p,
		Codec:      codec.JSON[meal]{},
		OnSelfHeal: func(_, reason string) { healed = append(healed, reason) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Foreign bytes under the cache's keyspace.
	k := c.storageKey("q")
	p.data[k] = []byte("garbage")

	if _, ok, err := c.Get(ctx, "q", 1); ok || err != nil {
		t.Fatalf("corrupt frame: ok=%v err=%v", ok, err)
	}
	if len(healed) != 1 || healed[0] != "corrupt" {
		t.Fatalf("self-heal reasons = %v, want [corrupt]", healed)
	}
	if p.len() != 0 {
		t.Fatalf("corrupt frame should be deleted")
	}

	// A well-framed header claiming an absurd item count is corruption too:
	// it must come back as a healed miss, never an allocation.
	big := wire.EncodeList(1, nil)
	binary.BigEndian.PutUint32(big[13:17], 0xFFFFFFFF)
	p.data[k] = big
	if _, ok, err := c.Get(ctx, "q", 1); ok || err != nil {
		t.Fatalf("huge-count frame: ok=%v err=%v", ok, err)
	}
	if len(healed) != 2 || healed[1] != "corrupt" {
		t.Fatalf("self-heal reasons = %v, want [corrupt corrupt]", healed)
	}
}

func TestUndecodableValueSelfHeals(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	var healed []string
	c, err := New(Options[meal]{
		Collection: "meals",
		Provider:   p,
		Codec:      codec.JSON[meal]{},
		OnSelfHeal: func(_, reason string) { healed = append(healed, reason) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A well-formed frame whose payload is not valid JSON for meal.
	frame := wire.EncodeList(1, []wire.Item{{ID: "m1", Payload: []byte("{nope")}})
	p.data[c.storageKey("q")] = frame

	if _, ok, err := c.Get(ctx, "q", 1); ok || err != nil {
		t.Fatalf("bad payload: ok=%v err=%v", ok, err)
	}
	if len(healed) != 1 || healed[0] != "value_decode" {
		t.Fatalf("self-heal reasons = %v, want [value_decode]", healed)
	}
}

func TestSetRejectionIsReported(t *testing.T) {
	p := newMemProvider()
	p.rejectSet = true
	var rejected int
	c, err := New(Options[meal]{
		Collection:    "meals",
		Provider:      p,
		Codec:         codec.JSON[meal]{},
		OnSetRejected: func(string) { rejected++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Set(context.Background(), "q", nil, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if rejected != 1 {
		t.Fatalf("OnSetRejected fired %d times, want 1", rejected)
	}
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	c := newTestCache(t, p)

	if err := c.Set(ctx, "q", []Entry[meal]{{ID: "m1"}}, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Invalidate(ctx, "q"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "q", 1); ok {
		t.Fatalf("invalidated key should miss")
	}
}

func TestOptionsValidation(t *testing.T) {
	if _, err := New(Options[meal]{Provider: newMemProvider(), Codec: codec.JSON[meal]{}}); err == nil {
		t.Fatalf("missing collection should fail")
	}
	if _, err := New(Options[meal]{Collection: "meals", Codec: codec.JSON[meal]{}}); err == nil {
		t.Fatalf("missing provider should fail")
	}
	if _, err := New(Options[meal]{Collection: "meals", Provider: newMemProvider()}); err == nil {
		t.Fatalf("missing codec should fail")
	}
}
