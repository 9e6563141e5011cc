package datasync

import "sync"

// EventType discriminates dispatcher events.
type EventType uint8

const (
	// EventUpdated: an entity was written locally.
	EventUpdated EventType = iota + 1
	// EventDeleted: an entity was deleted locally.
	EventDeleted
	// EventSynced: a pending operation reached the remote store.
	EventSynced
	// EventSyncFailed: a pending operation was dropped after a terminal
	// error; Err carries a *SyncError.
	EventSyncFailed
	// EventCleared: all local state for the collection was cleared
	// (sign-out or explicit ClearAll).
	EventCleared
)

func (t EventType) String() string {
	switch t {
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	case EventSynced:
		return "synced"
	case EventSyncFailed:
		return "sync_failed"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is published to subscribers on cache-invalidation/update activity.
// The presentation layer marshals these onto its own rendering context.
type Event struct {
	Type EventType
	ID   string // empty for EventCleared
	Err  error  // set for EventSyncFailed
}

// subscribers fans events out to registered channels. Sends never block: a
// subscriber whose buffer is full misses the event.
type subscribers struct {
	mu     sync.Mutex
	chans  map[int]chan Event
	next   int
	closed bool
}

func newSubscribers() *subscribers {
	return &subscribers{chans: make(map[int]chan Event)}
}

func (s *subscribers) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	n := s.next
	s.next++
	s.chans[n] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		if c, ok := s.chans[n]; ok {
			delete(s.chans, n)
			close(c)
		}
		s.mu.Unlock()
	}
}

func (s *subscribers) publish(e Event) {
	s.mu.Lock()
	for _, ch := range s.chans {
		select {
		case ch <- e:
		default: // slow consumer drops
		}
	}
	s.mu.Unlock()
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for n, ch := range s.chans {
			delete(s.chans, n)
			close(ch)
		}
	}
	s.mu.Unlock()
}
