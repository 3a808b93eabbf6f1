package memory

import (
	"context"
	"errors"
	"testing"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

func TestOpportunityStore_InsertAndGet(t *testing.T) {
	store := NewOpportunityStore()
	ctx := context.Background()

	o := &domain.Opportunity{
		ID:             "o1",
		Title:          "Label A&R review",
		Company:        "IndieWorks",
		Category:       "music",
		RequiredTokens: 50,
		Tags:           []string{"audio"},
		CreatedAt:      1704067200,
	}
	if err := store.Insert(ctx, o); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "o1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.RequiredTokens != 50 {
		t.Errorf("RequiredTokens mismatch: got %d, want 50", got.RequiredTokens)
	}

	if err := store.Insert(ctx, o); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestOpportunityStore_ListOrdering(t *testing.T) {
	store := NewOpportunityStore()
	ctx := context.Background()

	for _, o := range []*domain.Opportunity{
		{ID: "old", Title: "Old", CreatedAt: 1704067100},
		{ID: "new", Title: "New", CreatedAt: 1704067300},
	} {
		if err := store.Insert(ctx, o); err != nil {
			t.Fatalf("Insert %s failed: %v", o.ID, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List length: got %d, want 2", len(list))
	}
	if list[0].ID != "new" {
		t.Errorf("Newest-first ordering broken: got %s first", list[0].ID)
	}
}

func TestOpportunityStore_NotFound(t *testing.T) {
	store := NewOpportunityStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
