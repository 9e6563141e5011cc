package datasync

import (
	"testing"
	"time"
)

func op(id string, kind opKind, at int64) pendingOp {
	return pendingOp{id: id, kind: kind, payload: []byte(id), submittedAt: time.Unix(at, 0)}
}

func TestCollapseMostRecentWins(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opUpdate, 1))
	q.enqueue(op("m1", opUpdate, 2))

	ops := q.beginDrain()
	if len(ops) != 1 {
		t.Fatalf("want 1 collapsed op, got %d", len(ops))
	}
	if ops[0].submittedAt != time.Unix(2, 0) {
		t.Fatalf("older op survived the collapse")
	}
}

func TestDeleteAfterUnsyncedCreateIsNoop(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opCreate, 1))
	q.enqueue(op("m1", opDelete, 2))

	if q.size() != 0 {
		t.Fatalf("create+delete should net to nothing, size=%d", q.size())
	}
	if ops := q.beginDrain(); len(ops) != 0 {
		t.Fatalf("drain produced %d ops, want 0", len(ops))
	}
}

func TestUpdateAfterUnsyncedCreateStaysCreate(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opCreate, 1))
	q.enqueue(op("m1", opUpdate, 2))

	ops := q.beginDrain()
	if len(ops) != 1 || ops[0].kind != opCreate {
		t.Fatalf("ops=%+v, want one create", ops)
	}
	if string(ops[0].payload) != "m1" || ops[0].submittedAt != time.Unix(2, 0) {
		t.Fatalf("newest payload should carry the create kind")
	}
}

func TestDeleteAfterUpdateStaysDelete(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opUpdate, 1))
	q.enqueue(op("m1", opDelete, 2))

	ops := q.beginDrain()
	if len(ops) != 1 || ops[0].kind != opDelete {
		t.Fatalf("ops=%+v, want one delete", ops)
	}
}

func TestDrainOrderOldestFirst(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("b", opUpdate, 3))
	q.enqueue(op("a", opUpdate, 1))
	q.enqueue(op("c", opUpdate, 2))
	// Same timestamp: ties break by id.
	q.enqueue(op("z", opUpdate, 1))

	ops := q.beginDrain()
	got := make([]string, len(ops))
	for i, o := range ops {
		got[i] = o.id
	}
	want := []string{"a", "z", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drain order = %v, want %v", got, want)
		}
	}
}

func TestMutationDuringSyncBecomesFollower(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opUpdate, 1))
	q.beginDrain()

	// Arrives while m1 is in flight.
	q.enqueue(op("m1", opUpdate, 2))
	if q.queuedSize() != 0 {
		t.Fatalf("follower must not land in the queue while syncing")
	}

	if promoted := q.complete("m1"); !promoted {
		t.Fatalf("complete should report the promoted follower")
	}
	ops := q.beginDrain()
	if len(ops) != 1 || ops[0].submittedAt != time.Unix(2, 0) {
		t.Fatalf("promoted follower missing: %+v", ops)
	}
}

func TestRequeueMergesFollower(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opCreate, 1))
	q.beginDrain()

	// A delete arrives while the create push is in flight; the push then
	// fails retryably. The two net to nothing.
	q.enqueue(op("m1", opDelete, 2))
	q.requeue("m1")

	if q.size() != 0 {
		t.Fatalf("create+delete after requeue should net to nothing, size=%d", q.size())
	}
}

func TestRequeueWithoutFollower(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opUpdate, 1))
	q.beginDrain()
	q.requeue("m1")

	ops := q.beginDrain()
	if len(ops) != 1 || ops[0].id != "m1" {
		t.Fatalf("requeued op missing: %+v", ops)
	}
}

func TestDropDiscardsButPromotesFollower(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("m1", opUpdate, 1))
	q.beginDrain()
	q.enqueue(op("m1", opUpdate, 2))

	if promoted := q.drop("m1"); !promoted {
		t.Fatalf("drop should promote the follower")
	}
	ops := q.beginDrain()
	if len(ops) != 1 || ops[0].submittedAt != time.Unix(2, 0) {
		t.Fatalf("follower should survive a drop: %+v", ops)
	}
}

func TestClear(t *testing.T) {
	q := newPendingQueue()
	q.enqueue(op("a", opUpdate, 1))
	q.enqueue(op("b", opCreate, 2))
	q.beginDrain()
	q.enqueue(op("a", opUpdate, 3)) // follower
	q.enqueue(op("c", opDelete, 4)) // queued

	q.clear()
	if q.size() != 0 {
		t.Fatalf("size after clear = %d", q.size())
	}
}
