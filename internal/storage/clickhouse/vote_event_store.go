package clickhouse

import (
	"context"
	"fmt"
	"time"

	"talentlink-dao/internal/storage"
)

// VoteEventStore persists confirmed vote events in ClickHouse for analytics.
type VoteEventStore struct {
	conn *Conn
}

var _ storage.VoteEventStore = (*VoteEventStore)(nil)

func NewVoteEventStore(conn *Conn) *VoteEventStore {
	return &VoteEventStore{conn: conn}
}

// Insert appends a single confirmed vote event. The stream is append-only;
// events are never updated or deleted.
func (s *VoteEventStore) Insert(ctx context.Context, event *storage.VoteEvent) error {
	if event == nil {
		return storage.ErrInvalidInput
	}
	return s.InsertBatch(ctx, []*storage.VoteEvent{event})
}

// InsertBatch appends vote events using the native batch protocol.
func (s *VoteEventStore) InsertBatch(ctx context.Context, events []*storage.VoteEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO vote_events (
			creator_id, curator_address, amount, new_total,
			transaction_hash, confirmed_at
		)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		err := batch.Append(
			ev.CreatorID,
			ev.CuratorAddress,
			ev.Amount,
			ev.NewTotal,
			ev.TransactionHash,
			time.Unix(ev.ConfirmedAt, 0).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append vote event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByCreator returns the number of confirmed vote events recorded for a creator.
func (s *VoteEventStore) CountByCreator(ctx context.Context, creatorID string) (uint64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM vote_events WHERE creator_id = ?`,
		creatorID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count vote events: %w", err)
	}
	return count, nil
}
