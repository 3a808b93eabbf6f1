package memory

import (
	"context"
	"sync"

	"talentlink-dao/internal/storage"
)

// VoteEventStore is an in-memory implementation of storage.VoteEventStore,
// used when no ClickHouse DSN is configured.
type VoteEventStore struct {
	mu     sync.RWMutex
	events []storage.VoteEvent
}

// NewVoteEventStore creates a new in-memory vote event store.
func NewVoteEventStore() *VoteEventStore {
	return &VoteEventStore{}
}

// Compile-time interface check.
var _ storage.VoteEventStore = (*VoteEventStore)(nil)

// Insert appends one confirmed vote event.
func (s *VoteEventStore) Insert(_ context.Context, e *storage.VoteEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

// CountByCreator returns the number of recorded events for a creator.
func (s *VoteEventStore) CountByCreator(_ context.Context, creatorID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count uint64
	for _, e := range s.events {
		if e.CreatorID == creatorID {
			count++
		}
	}
	return count, nil
}

// Events returns a snapshot of all recorded events in insertion order.
func (s *VoteEventStore) Events() []storage.VoteEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]storage.VoteEvent(nil), s.events...)
}
