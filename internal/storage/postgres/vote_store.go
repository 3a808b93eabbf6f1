package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

// VoteStore implements storage.VoteStore using PostgreSQL.
// The votes table is append-only; rows are never updated or deleted.
type VoteStore struct {
	pool *Pool
}

// NewVoteStore creates a new VoteStore.
func NewVoteStore(pool *Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)

// Insert adds a new vote record. Returns ErrDuplicateKey if the vote id
// exists, which means the same confirmed transaction was already recorded.
func (s *VoteStore) Insert(ctx context.Context, v *domain.Vote) error {
	query := `
		INSERT INTO votes (
			id, creator_id, curator_address, amount, transaction_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		v.ID,
		v.CreatorID,
		v.CuratorAddress,
		int64(v.Amount),
		v.TransactionHash,
		v.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// GetByID retrieves a vote by its ID. Returns ErrNotFound if not exists.
func (s *VoteStore) GetByID(ctx context.Context, id string) (*domain.Vote, error) {
	query := `
		SELECT id, creator_id, curator_address, amount, transaction_hash, created_at
		FROM votes
		WHERE id = $1
	`

	v, err := scanVote(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get vote by id: %w", err)
	}
	return v, nil
}

// ListByCreator retrieves all votes for a creator, ordered by created_at
// ASC, id ASC.
func (s *VoteStore) ListByCreator(ctx context.Context, creatorID string) ([]*domain.Vote, error) {
	query := `
		SELECT id, creator_id, curator_address, amount, transaction_hash, created_at
		FROM votes
		WHERE creator_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list votes by creator: %w", err)
	}
	defer rows.Close()

	var votes []*domain.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote row: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote rows: %w", err)
	}
	return votes, nil
}

// SumByCreator returns SUM(amount) over the creator's audit log.
func (s *VoteStore) SumByCreator(ctx context.Context, creatorID string) (uint64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM votes WHERE creator_id = $1`

	var sum int64
	if err := s.pool.QueryRow(ctx, query, creatorID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum votes by creator: %w", err)
	}
	return uint64(sum), nil
}

// scanVote scans a single row into a Vote.
func scanVote(row pgx.Row) (*domain.Vote, error) {
	var v domain.Vote
	var amount int64

	err := row.Scan(
		&v.ID,
		&v.CreatorID,
		&v.CuratorAddress,
		&amount,
		&v.TransactionHash,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Amount = uint64(amount)
	return &v, nil
}
