package gallery

import (
	"sync"
)

// Source identifies which producer published items to a Sink.
type Source int

const (
	SourceCache Source = iota
	SourceQuickProbe
	SourceFull
	SourceBackfill
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceQuickProbe:
		return "quick-probe"
	case SourceFull:
		return "full"
	default:
		return "backfill"
	}
}

// Sink is the single merge point for every producer of gallery items. Publishing
// sets items by ID, so producers can race freely and publish in any order.
// Snapshots are deduplicated by catalog key.
type Sink struct {
	items       map[uint64]Item
	subscribers map[int]chan []Item
	mu          sync.Mutex
	nextSub     int
	fullSeen    bool
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{
		items:       make(map[uint64]Item),
		subscribers: make(map[int]chan []Item),
	}
}

// Publish merges items into the sink and reports whether they were accepted.
//
// Cache items are only accepted while the sink is empty. Quick-probe items are
// dropped once the full load has published anything. An incoming item with an
// empty owner keeps the owner already recorded for its ID.
func (s *Sink) Publish(src Source, items ...Item) bool {
	if len(items) == 0 {
		return false
	}

	s.mu.Lock()
	switch src {
	case SourceCache:
		if len(s.items) > 0 {
			s.mu.Unlock()
			return false
		}
	case SourceQuickProbe:
		if s.fullSeen {
			s.mu.Unlock()
			return false
		}
	case SourceFull:
		s.fullSeen = true
	}

	for _, it := range items {
		if existing, ok := s.items[it.ID]; ok && it.Owner == "" {
			it.Owner = existing.Owner
		}
		s.items[it.ID] = it
	}
	s.notifyLocked(s.snapshotLocked())
	s.mu.Unlock()
	return true
}

// Replace swaps the sink's contents for items, typically the merged result of a load.
func (s *Sink) Replace(items []Item) {
	s.mu.Lock()
	s.items = make(map[uint64]Item, len(items))
	for _, it := range items {
		s.items[it.ID] = it
	}
	s.fullSeen = true
	s.notifyLocked(s.snapshotLocked())
	s.mu.Unlock()
}

// SetOwner records owner for id if the item is present. It reports whether it was.
func (s *Sink) SetOwner(id uint64, owner string) bool {
	s.mu.Lock()
	it, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	it.Owner = owner
	s.items[id] = it
	s.notifyLocked(s.snapshotLocked())
	s.mu.Unlock()
	return true
}

// Snapshot returns the current items, one per catalog key, sorted by ID.
func (s *Sink) Snapshot() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of distinct token IDs held.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Reset empties the sink and clears the full-load marker.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.items = make(map[uint64]Item)
	s.fullSeen = false
	s.mu.Unlock()
}

// Subscribe returns a channel receiving a snapshot after every accepted change,
// and a function that unsubscribes and closes the channel. A slow subscriber only
// ever sees the latest snapshot.
func (s *Sink) Subscribe() (<-chan []Item, func()) {
	ch := make(chan []Item, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Sink) snapshotLocked() []Item {
	items := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	return dedupeByCatalog(items)
}

func (s *Sink) notifyLocked(snapshot []Item) {
	for _, ch := range s.subscribers {
		// Replace any snapshot the subscriber has not consumed yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
