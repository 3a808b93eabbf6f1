package memory

import (
	"context"
	"sort"
	"sync"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

// VoteStore is an in-memory implementation of storage.VoteStore.
// The log is append-only; votes are never updated or deleted.
type VoteStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Vote // keyed by vote id
}

// NewVoteStore creates a new in-memory vote store.
func NewVoteStore() *VoteStore {
	return &VoteStore{
		data: make(map[string]*domain.Vote),
	}
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)

// Insert adds a new vote record. Returns ErrDuplicateKey if the vote id exists.
func (s *VoteStore) Insert(_ context.Context, v *domain.Vote) error {
	if v == nil || v.ID == "" || v.CreatorID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[v.ID]; exists {
		return storage.ErrDuplicateKey
	}

	voteCopy := *v
	s.data[v.ID] = &voteCopy
	return nil
}

// GetByID retrieves a vote by its ID. Returns ErrNotFound if not exists.
func (s *VoteStore) GetByID(_ context.Context, id string) (*domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	voteCopy := *v
	return &voteCopy, nil
}

// ListByCreator retrieves all votes for a creator, ordered by created_at ASC,
// id ASC.
func (s *VoteStore) ListByCreator(_ context.Context, creatorID string) ([]*domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Vote
	for _, v := range s.data {
		if v.CreatorID == creatorID {
			voteCopy := *v
			result = append(result, &voteCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// SumByCreator returns SUM(amount) over the creator's audit log.
func (s *VoteStore) SumByCreator(_ context.Context, creatorID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum uint64
	for _, v := range s.data {
		if v.CreatorID == creatorID {
			sum += v.Amount
		}
	}
	return sum, nil
}
