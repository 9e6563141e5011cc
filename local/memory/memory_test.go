package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Get(ctx, "meals", "m1"); ok || err != nil {
		t.Fatalf("get on empty store: ok=%v err=%v", ok, err)
	}

	if err := s.Save(ctx, "meals", "m1", []byte("v1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Get(ctx, "meals", "m1")
	if err != nil || !ok || !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("get: %q ok=%v err=%v", got, ok, err)
	}

	// Upsert overwrites.
	if err := s.Save(ctx, "meals", "m1", []byte("v2")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _, _ = s.Get(ctx, "meals", "m1")
	if !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("after upsert: %q", got)
	}

	if err := s.Delete(ctx, "meals", "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "meals", "m1"); ok {
		t.Fatalf("get after delete should miss")
	}
}

func TestListSortedAndScopedToCollection(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, id := range []string{"c", "a", "b"} {
		if err := s.Save(ctx, "meals", id, []byte(id)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.Save(ctx, "workouts", "w1", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}

	recs, err := s.List(ctx, "meals")
	if err != nil || len(recs) != 3 {
		t.Fatalf("list: n=%d err=%v", len(recs), err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if recs[i].ID != want {
			t.Fatalf("list order: got %s at %d, want %s", recs[i].ID, i, want)
		}
	}
}

func TestClearIsCollectionScoped(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Save(ctx, "meals", "m1", []byte("x"))
	_ = s.Save(ctx, "workouts", "w1", []byte("y"))

	if err := s.Clear(ctx, "meals"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "meals", "m1"); ok {
		t.Fatalf("meals should be empty")
	}
	if _, ok, _ := s.Get(ctx, "workouts", "w1"); !ok {
		t.Fatalf("other collections must survive")
	}
}

func TestPayloadsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := []byte("original")
	_ = s.Save(ctx, "meals", "m1", p)
	p[0] = 'X'

	got, _, _ := s.Get(ctx, "meals", "m1")
	if !bytes.Equal(got, []byte("original")) {
		t.Fatalf("stored payload aliased caller memory: %q", got)
	}
	got[0] = 'Y'
	again, _, _ := s.Get(ctx, "meals", "m1")
	if !bytes.Equal(again, []byte("original")) {
		t.Fatalf("returned payload aliased store memory: %q", again)
	}
}
