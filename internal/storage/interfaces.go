package storage

import (
	"context"

	"talentlink-dao/internal/domain"
)

// CreatorStore provides access to creators storage.
type CreatorStore interface {
	// Insert adds a new creator. Returns ErrDuplicateKey if the id or
	// wallet address exists.
	Insert(ctx context.Context, c *domain.Creator) error

	// GetByID retrieves a creator by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Creator, error)

	// GetByWallet retrieves a creator by normalized wallet address.
	// Returns ErrNotFound if not exists.
	GetByWallet(ctx context.Context, wallet string) (*domain.Creator, error)

	// List retrieves all creators ordered by total_votes DESC, created_at ASC.
	List(ctx context.Context) ([]*domain.Creator, error)

	// IncrementVotes atomically adds amount to a creator's total and
	// returns the new total. The read-modify-write happens in a single
	// statement so concurrent increments for the same creator serialize
	// without lost updates. Returns ErrNotFound if the creator does not
	// exist.
	IncrementVotes(ctx context.Context, id string, amount uint64) (uint64, error)

	// RecomputeTotal rebuilds total_votes from the vote audit log in one
	// atomic statement and returns the rebuilt total. total_votes is a
	// cache of SUM(votes.amount); this is the recovery path after a
	// reconciliation failure.
	RecomputeTotal(ctx context.Context, id string) (uint64, error)

	// SetNFTMinted records profile NFT mint state. A tokenID <= 0 marks
	// the mint without a known token id.
	SetNFTMinted(ctx context.Context, id string, tokenID int64) error

	// SetAITags replaces a creator's advisory enrichment tags.
	SetAITags(ctx context.Context, id string, tags []string) error
}

// VoteStore provides access to the append-only vote audit log.
type VoteStore interface {
	// Insert adds a new vote record. Returns ErrDuplicateKey if the vote
	// id exists (same confirmed transaction recorded twice).
	Insert(ctx context.Context, v *domain.Vote) error

	// GetByID retrieves a vote by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Vote, error)

	// ListByCreator retrieves all votes for a creator, ordered by
	// created_at ASC, id ASC.
	ListByCreator(ctx context.Context, creatorID string) ([]*domain.Vote, error)

	// SumByCreator returns SUM(amount) over the creator's audit log.
	SumByCreator(ctx context.Context, creatorID string) (uint64, error)
}

// OpportunityStore provides read access to token-gated opportunities.
type OpportunityStore interface {
	// Insert adds a new opportunity. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, o *domain.Opportunity) error

	// GetByID retrieves an opportunity by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Opportunity, error)

	// List retrieves all opportunities ordered by created_at DESC, id ASC.
	List(ctx context.Context) ([]*domain.Opportunity, error)
}

// VoteEventStore is the best-effort analytics stream of confirmed votes.
// Writes must never sit on the reconciliation correctness path.
type VoteEventStore interface {
	// Insert appends one confirmed vote event.
	Insert(ctx context.Context, e *VoteEvent) error

	// CountByCreator returns the number of recorded events for a creator.
	CountByCreator(ctx context.Context, creatorID string) (uint64, error)
}

// VoteEvent is one row of the analytics stream.
type VoteEvent struct {
	CreatorID       string
	CuratorAddress  string
	Amount          uint64
	NewTotal        uint64 // aggregate immediately after the increment
	TransactionHash string
	ConfirmedAt     int64 // Unix seconds
}
