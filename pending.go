package datasync

import (
	"sort"
	"sync"
	"time"
)

// opKind discriminates pending operations.
type opKind uint8

const (
	opCreate opKind = iota + 1
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// pendingOp is one queued local mutation awaiting propagation to the remote
// store.
type pendingOp struct {
	id          string
	kind        opKind
	payload     []byte // nil for deletes
	submittedAt time.Time
}

// pendingQueue holds at most one pending operation per entity id, in one of
// two slots: queued (awaiting a drain) or syncing (push in flight). A
// mutation arriving while its entity is syncing lands in the follower slot
// and is promoted once the in-flight push completes.
type pendingQueue struct {
	mu        sync.Mutex
	queued    map[string]*pendingOp
	syncing   map[string]*pendingOp
	followers map[string]*pendingOp
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		queued:    make(map[string]*pendingOp),
		syncing:   make(map[string]*pendingOp),
		followers: make(map[string]*pendingOp),
	}
}

// collapse merges a new operation into an existing pending one,
// most-recent-wins. A delete after an unsynced create nets to no pending
// operation at all (the remote store never saw the entity); an update after
// an unsynced create stays a create for the same reason.
func collapse(old, next *pendingOp) *pendingOp {
	if old == nil {
		return next
	}
	if next.kind == opDelete && old.kind == opCreate {
		return nil
	}
	if old.kind == opCreate && next.kind == opUpdate {
		next.kind = opCreate
	}
	return next
}

func (q *pendingQueue) enqueue(op pendingOp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, busy := q.syncing[op.id]; busy {
		merged := collapse(q.followers[op.id], &op)
		if merged == nil {
			delete(q.followers, op.id)
		} else {
			q.followers[op.id] = merged
		}
		return
	}
	merged := collapse(q.queued[op.id], &op)
	if merged == nil {
		delete(q.queued, op.id)
	} else {
		q.queued[op.id] = merged
	}
}

// beginDrain moves every queued operation into the syncing slot and returns
// them oldest-first (ties break by id).
func (q *pendingQueue) beginDrain() []pendingOp {
	q.mu.Lock()
	out := make([]pendingOp, 0, len(q.queued))
	for id, op := range q.queued {
		q.syncing[id] = op
		out = append(out, *op)
	}
	q.queued = make(map[string]*pendingOp)
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].submittedAt.Equal(out[j].submittedAt) {
			return out[i].id < out[j].id
		}
		return out[i].submittedAt.Before(out[j].submittedAt)
	})
	return out
}

// complete removes a successfully pushed operation. Returns true when a
// follower was promoted into the queue (more work to drain).
func (q *pendingQueue) complete(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.syncing, id)
	return q.promoteFollower(id)
}

// requeue returns a retryably-failed operation to the queue, merging any
// follower that arrived while it was syncing (the follower is newer).
func (q *pendingQueue) requeue(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	op, ok := q.syncing[id]
	if !ok {
		return
	}
	delete(q.syncing, id)
	merged := op
	if f, ok := q.followers[id]; ok {
		delete(q.followers, id)
		merged = collapse(op, f)
	}
	if merged != nil {
		q.queued[id] = merged
	}
}

// drop discards a terminally-failed operation. Returns true when a follower
// was promoted.
func (q *pendingQueue) drop(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.syncing, id)
	return q.promoteFollower(id)
}

// promoteFollower moves the follower for id into the queue. Callers hold mu.
func (q *pendingQueue) promoteFollower(id string) bool {
	f, ok := q.followers[id]
	if !ok {
		return false
	}
	delete(q.followers, id)
	q.queued[id] = f
	return true
}

func (q *pendingQueue) size() int {
	q.mu.Lock()
	n := len(q.queued) + len(q.syncing) + len(q.followers)
	q.mu.Unlock()
	return n
}

func (q *pendingQueue) queuedSize() int {
	q.mu.Lock()
	n := len(q.queued)
	q.mu.Unlock()
	return n
}

func (q *pendingQueue) clear() {
	q.mu.Lock()
	q.queued = make(map[string]*pendingOp)
	q.syncing = make(map[string]*pendingOp)
	q.followers = make(map[string]*pendingOp)
	q.mu.Unlock()
}
