package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

// CreatorStore implements storage.CreatorStore using PostgreSQL.
type CreatorStore struct {
	pool *Pool
}

// NewCreatorStore creates a new CreatorStore.
func NewCreatorStore(pool *Pool) *CreatorStore {
	return &CreatorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CreatorStore = (*CreatorStore)(nil)

const creatorColumns = `
	id, wallet_address, name, bio, category, skills, ai_tags,
	nft_token_id, nft_minted, total_votes, created_at, updated_at
`

// Insert adds a new creator. Returns ErrDuplicateKey if the id or wallet
// address exists.
func (s *CreatorStore) Insert(ctx context.Context, c *domain.Creator) error {
	query := `
		INSERT INTO creators (
			id, wallet_address, name, bio, category, skills, ai_tags,
			nft_token_id, nft_minted, total_votes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		c.ID,
		c.WalletAddress,
		c.Name,
		c.Bio,
		c.Category,
		c.Skills,
		c.AITags,
		c.NFTTokenID,
		c.NFTMinted,
		int64(c.TotalVotes),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert creator: %w", err)
	}
	return nil
}

// GetByID retrieves a creator by its ID. Returns ErrNotFound if not exists.
func (s *CreatorStore) GetByID(ctx context.Context, id string) (*domain.Creator, error) {
	query := `SELECT ` + creatorColumns + ` FROM creators WHERE id = $1`

	c, err := scanCreator(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get creator by id: %w", err)
	}
	return c, nil
}

// GetByWallet retrieves a creator by normalized wallet address.
func (s *CreatorStore) GetByWallet(ctx context.Context, wallet string) (*domain.Creator, error) {
	query := `SELECT ` + creatorColumns + ` FROM creators WHERE wallet_address = $1`

	c, err := scanCreator(s.pool.QueryRow(ctx, query, wallet))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get creator by wallet: %w", err)
	}
	return c, nil
}

// List retrieves all creators ordered by total_votes DESC, created_at ASC.
func (s *CreatorStore) List(ctx context.Context) ([]*domain.Creator, error) {
	query := `SELECT ` + creatorColumns + ` FROM creators ORDER BY total_votes DESC, created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list creators: %w", err)
	}
	defer rows.Close()

	var creators []*domain.Creator
	for rows.Next() {
		c, err := scanCreator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan creator row: %w", err)
		}
		creators = append(creators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creator rows: %w", err)
	}
	return creators, nil
}

// IncrementVotes atomically adds amount to a creator's total and returns the
// new total. Single UPDATE so concurrent voters serialize at the row without
// lost updates.
func (s *CreatorStore) IncrementVotes(ctx context.Context, id string, amount uint64) (uint64, error) {
	query := `
		UPDATE creators
		SET total_votes = total_votes + $2,
		    updated_at = EXTRACT(EPOCH FROM NOW())::bigint
		WHERE id = $1
		RETURNING total_votes
	`

	var newTotal int64
	err := s.pool.QueryRow(ctx, query, id, int64(amount)).Scan(&newTotal)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("increment creator votes: %w", err)
	}
	return uint64(newTotal), nil
}

// RecomputeTotal rebuilds total_votes from the vote audit log in one
// statement and returns the rebuilt total.
func (s *CreatorStore) RecomputeTotal(ctx context.Context, id string) (uint64, error) {
	query := `
		UPDATE creators
		SET total_votes = (
			SELECT COALESCE(SUM(amount), 0) FROM votes WHERE creator_id = $1
		),
		    updated_at = EXTRACT(EPOCH FROM NOW())::bigint
		WHERE id = $1
		RETURNING total_votes
	`

	var total int64
	err := s.pool.QueryRow(ctx, query, id).Scan(&total)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("recompute creator total: %w", err)
	}
	return uint64(total), nil
}

// SetNFTMinted records profile NFT mint state.
func (s *CreatorStore) SetNFTMinted(ctx context.Context, id string, tokenID int64) error {
	query := `
		UPDATE creators
		SET nft_minted = TRUE,
		    nft_token_id = NULLIF($2, 0),
		    updated_at = EXTRACT(EPOCH FROM NOW())::bigint
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, id, tokenID)
	if err != nil {
		return fmt.Errorf("set creator nft minted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetAITags replaces a creator's advisory enrichment tags.
func (s *CreatorStore) SetAITags(ctx context.Context, id string, tags []string) error {
	query := `
		UPDATE creators
		SET ai_tags = $2,
		    updated_at = EXTRACT(EPOCH FROM NOW())::bigint
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, id, tags)
	if err != nil {
		return fmt.Errorf("set creator ai tags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanCreator scans a single row into a Creator.
func scanCreator(row pgx.Row) (*domain.Creator, error) {
	var c domain.Creator
	var totalVotes int64

	err := row.Scan(
		&c.ID,
		&c.WalletAddress,
		&c.Name,
		&c.Bio,
		&c.Category,
		&c.Skills,
		&c.AITags,
		&c.NFTTokenID,
		&c.NFTMinted,
		&totalVotes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.TotalVotes = uint64(totalVotes)
	return &c, nil
}
