package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

// CreatorStore is an in-memory implementation of storage.CreatorStore.
type CreatorStore struct {
	mu       sync.RWMutex
	data     map[string]*domain.Creator // keyed by creator id
	byWallet map[string]string          // wallet_address -> id
	votes    *VoteStore                 // audit log used by RecomputeTotal, may be nil
}

// NewCreatorStore creates a new in-memory creator store. votes may be nil;
// RecomputeTotal then rebuilds from an empty audit log.
func NewCreatorStore(votes *VoteStore) *CreatorStore {
	return &CreatorStore{
		data:     make(map[string]*domain.Creator),
		byWallet: make(map[string]string),
		votes:    votes,
	}
}

// Compile-time interface check.
var _ storage.CreatorStore = (*CreatorStore)(nil)

// Insert adds a new creator. Returns ErrDuplicateKey if the id or wallet
// address exists.
func (s *CreatorStore) Insert(_ context.Context, c *domain.Creator) error {
	if c == nil || c.ID == "" || c.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byWallet[c.WalletAddress]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	creatorCopy := copyCreator(c)
	s.data[c.ID] = creatorCopy
	s.byWallet[c.WalletAddress] = c.ID
	return nil
}

// GetByID retrieves a creator by its ID. Returns ErrNotFound if not exists.
func (s *CreatorStore) GetByID(_ context.Context, id string) (*domain.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyCreator(c), nil
}

// GetByWallet retrieves a creator by normalized wallet address.
func (s *CreatorStore) GetByWallet(_ context.Context, wallet string) (*domain.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byWallet[wallet]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyCreator(s.data[id]), nil
}

// List retrieves all creators ordered by total_votes DESC, created_at ASC.
func (s *CreatorStore) List(_ context.Context) ([]*domain.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Creator, 0, len(s.data))
	for _, c := range s.data {
		result = append(result, copyCreator(c))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalVotes != result[j].TotalVotes {
			return result[i].TotalVotes > result[j].TotalVotes
		}
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// IncrementVotes atomically adds amount to a creator's total and returns
// the new total. The store mutex serializes concurrent increments.
func (s *CreatorStore) IncrementVotes(_ context.Context, id string, amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[id]
	if !exists {
		return 0, storage.ErrNotFound
	}

	c.TotalVotes += amount
	c.UpdatedAt = time.Now().Unix()
	return c.TotalVotes, nil
}

// RecomputeTotal rebuilds total_votes from the vote audit log.
func (s *CreatorStore) RecomputeTotal(ctx context.Context, id string) (uint64, error) {
	var total uint64
	if s.votes != nil {
		var err error
		total, err = s.votes.SumByCreator(ctx, id)
		if err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[id]
	if !exists {
		return 0, storage.ErrNotFound
	}

	c.TotalVotes = total
	c.UpdatedAt = time.Now().Unix()
	return c.TotalVotes, nil
}

// SetNFTMinted records profile NFT mint state.
func (s *CreatorStore) SetNFTMinted(_ context.Context, id string, tokenID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	if tokenID > 0 {
		c.NFTTokenID = &tokenID
	}
	c.NFTMinted = true
	c.UpdatedAt = time.Now().Unix()
	return nil
}

// SetAITags replaces a creator's advisory enrichment tags.
func (s *CreatorStore) SetAITags(_ context.Context, id string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	c.AITags = append([]string(nil), tags...)
	c.UpdatedAt = time.Now().Unix()
	return nil
}

// copyCreator deep-copies a creator including its slice fields.
func copyCreator(c *domain.Creator) *domain.Creator {
	creatorCopy := *c
	creatorCopy.Skills = append([]string(nil), c.Skills...)
	creatorCopy.AITags = append([]string(nil), c.AITags...)
	if c.NFTTokenID != nil {
		tokenID := *c.NFTTokenID
		creatorCopy.NFTTokenID = &tokenID
	}
	return &creatorCopy
}
