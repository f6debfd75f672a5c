// Package store holds the session-scoped notification log. Entries live in
// memory only and are never evicted; the log is rebuilt from scratch when the
// process restarts.
package store

import (
	"sync"

	"posfeed/pkg/types"
)

// Store is an ordered append log of notifications with a maintained unread
// counter. Entries are kept most-recent-first and are only ever mutated by
// flipping IsRead; nothing is deleted or edited in place.
//
// The counter is advisory when duplicate ids exist: Add increments it
// unconditionally and never inspects existing entries, so two entries sharing
// an id both count. That mirrors the id scheme being stable per
// order+event-kind pair without the store enforcing uniqueness.
type Store struct {
	mu       sync.RWMutex
	entries  []types.Notification
	unread   int
	onChange func(unread int)
}

// New creates an empty notification log.
func New() *Store {
	return &Store{}
}

// SetOnChange registers a callback invoked after every mutation with the
// current unread count. Intended for the hosting UI's badge; may be nil.
func (s *Store) SetOnChange(fn func(unread int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Add prepends n to the log and increments the unread counter by exactly
// one, even when an entry with the same id already exists.
func (s *Store) Add(n types.Notification) {
	s.mu.Lock()
	n.IsRead = false
	s.entries = append([]types.Notification{n}, s.entries...)
	s.unread++
	fn, unread := s.onChange, s.unread
	s.mu.Unlock()

	if fn != nil {
		fn(unread)
	}
}

// MarkAsRead flips the first entry with a matching id to read and decrements
// the unread counter. An absent or already-read id is a no-op; this is what
// keeps the counter from going negative.
func (s *Store) MarkAsRead(id string) {
	s.mu.Lock()
	changed := false
	for i := range s.entries {
		if s.entries[i].ID == id {
			if !s.entries[i].IsRead {
				s.entries[i].IsRead = true
				s.unread--
				changed = true
			}
			break
		}
	}
	fn, unread := s.onChange, s.unread
	s.mu.Unlock()

	if changed && fn != nil {
		fn(unread)
	}
}

// MarkAllAsRead flips every entry to read and resets the unread counter.
// Idempotent.
func (s *Store) MarkAllAsRead() {
	s.mu.Lock()
	for i := range s.entries {
		s.entries[i].IsRead = true
	}
	s.unread = 0
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(0)
	}
}

// Snapshot returns a copy of the log (most-recent-first) and the unread count.
func (s *Store) Snapshot() ([]types.Notification, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Notification, len(s.entries))
	copy(out, s.entries)
	return out, s.unread
}

// UnreadCount returns the current unread counter.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Len returns the number of entries in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
