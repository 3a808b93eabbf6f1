package memory

import (
	"context"
	"sort"
	"sync"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

// OpportunityStore is an in-memory implementation of storage.OpportunityStore.
type OpportunityStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Opportunity // keyed by opportunity id
}

// NewOpportunityStore creates a new in-memory opportunity store.
func NewOpportunityStore() *OpportunityStore {
	return &OpportunityStore{
		data: make(map[string]*domain.Opportunity),
	}
}

// Compile-time interface check.
var _ storage.OpportunityStore = (*OpportunityStore)(nil)

// Insert adds a new opportunity. Returns ErrDuplicateKey if id exists.
func (s *OpportunityStore) Insert(_ context.Context, o *domain.Opportunity) error {
	if o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[o.ID] = copyOpportunity(o)
	return nil
}

// GetByID retrieves an opportunity by ID. Returns ErrNotFound if not exists.
func (s *OpportunityStore) GetByID(_ context.Context, id string) (*domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyOpportunity(o), nil
}

// List retrieves all opportunities ordered by created_at DESC, id ASC.
func (s *OpportunityStore) List(_ context.Context) ([]*domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Opportunity, 0, len(s.data))
	for _, o := range s.data {
		result = append(result, copyOpportunity(o))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func copyOpportunity(o *domain.Opportunity) *domain.Opportunity {
	opportunityCopy := *o
	opportunityCopy.Tags = append([]string(nil), o.Tags...)
	return &opportunityCopy
}
