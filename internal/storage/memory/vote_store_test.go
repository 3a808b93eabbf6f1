package memory

import (
	"context"
	"errors"
	"testing"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

func TestVoteStore_InsertAndGet(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	v := &domain.Vote{
		ID:              "v1",
		CreatorID:       "c1",
		CuratorAddress:  "0xcurator",
		Amount:          5,
		TransactionHash: "0xdeadbeef",
		CreatedAt:       1704067200,
	}
	if err := store.Insert(ctx, v); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "v1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Amount != 5 || got.TransactionHash != "0xdeadbeef" {
		t.Errorf("Vote mismatch: %+v", got)
	}
}

func TestVoteStore_DuplicateKey(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	v := &domain.Vote{ID: "v1", CreatorID: "c1", Amount: 3, CreatedAt: 1704067200}
	if err := store.Insert(ctx, v); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	if err := store.Insert(ctx, v); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestVoteStore_ListByCreatorOrdering(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	inserts := []*domain.Vote{
		{ID: "v2", CreatorID: "c1", Amount: 2, CreatedAt: 1704067300},
		{ID: "v1", CreatorID: "c1", Amount: 1, CreatedAt: 1704067200},
		{ID: "v3", CreatorID: "other", Amount: 9, CreatedAt: 1704067100},
	}
	for _, v := range inserts {
		if err := store.Insert(ctx, v); err != nil {
			t.Fatalf("Insert %s failed: %v", v.ID, err)
		}
	}

	list, err := store.ListByCreator(ctx, "c1")
	if err != nil {
		t.Fatalf("ListByCreator failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List length: got %d, want 2", len(list))
	}
	if list[0].ID != "v1" || list[1].ID != "v2" {
		t.Errorf("Ordering by created_at ASC broken: got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestVoteStore_SumByCreator(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	for _, v := range []*domain.Vote{
		{ID: "v1", CreatorID: "c1", Amount: 10, CreatedAt: 1704067200},
		{ID: "v2", CreatorID: "c1", Amount: 5, CreatedAt: 1704067300},
		{ID: "v3", CreatorID: "c2", Amount: 7, CreatedAt: 1704067400},
	} {
		if err := store.Insert(ctx, v); err != nil {
			t.Fatalf("Insert %s failed: %v", v.ID, err)
		}
	}

	sum, err := store.SumByCreator(ctx, "c1")
	if err != nil {
		t.Fatalf("SumByCreator failed: %v", err)
	}
	if sum != 15 {
		t.Errorf("Sum: got %d, want 15", sum)
	}

	sum, err = store.SumByCreator(ctx, "nobody")
	if err != nil {
		t.Fatalf("SumByCreator failed: %v", err)
	}
	if sum != 0 {
		t.Errorf("Sum for unknown creator: got %d, want 0", sum)
	}
}

func TestVoteStore_InvalidInput(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil vote, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Vote{CreatorID: "c1"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty id, got %v", err)
	}
}
