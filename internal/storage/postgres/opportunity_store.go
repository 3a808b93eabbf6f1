package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

// OpportunityStore implements storage.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *Pool
}

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OpportunityStore = (*OpportunityStore)(nil)

const opportunityColumns = `
	id, title, description, company, category, required_tokens, tags,
	application_url, created_at
`

// Insert adds a new opportunity. Returns ErrDuplicateKey if id exists.
func (s *OpportunityStore) Insert(ctx context.Context, o *domain.Opportunity) error {
	query := `
		INSERT INTO opportunities (
			id, title, description, company, category, required_tokens, tags,
			application_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		o.ID,
		o.Title,
		o.Description,
		o.Company,
		o.Category,
		int64(o.RequiredTokens),
		o.Tags,
		o.ApplicationURL,
		o.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// GetByID retrieves an opportunity by ID. Returns ErrNotFound if not exists.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (*domain.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE id = $1`

	o, err := scanOpportunity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get opportunity by id: %w", err)
	}
	return o, nil
}

// List retrieves all opportunities ordered by created_at DESC, id ASC.
func (s *OpportunityStore) List(ctx context.Context) ([]*domain.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities ORDER BY created_at DESC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var opportunities []*domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity row: %w", err)
		}
		opportunities = append(opportunities, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunity rows: %w", err)
	}
	return opportunities, nil
}

// scanOpportunity scans a single row into an Opportunity.
func scanOpportunity(row pgx.Row) (*domain.Opportunity, error) {
	var o domain.Opportunity
	var required int64

	err := row.Scan(
		&o.ID,
		&o.Title,
		&o.Description,
		&o.Company,
		&o.Category,
		&required,
		&o.Tags,
		&o.ApplicationURL,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.RequiredTokens = uint64(required)
	return &o, nil
}
