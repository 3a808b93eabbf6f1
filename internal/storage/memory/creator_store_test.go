package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
)

func testCreator(id, wallet string) *domain.Creator {
	return &domain.Creator{
		ID:            id,
		WalletAddress: wallet,
		Name:          "Creator " + id,
		Category:      "music",
		Skills:        []string{"mixing", "production"},
		CreatedAt:     1704067200,
		UpdatedAt:     1704067200,
	}
}

func TestCreatorStore_InsertAndGet(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	c := testCreator("c1", "0xaaa")
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.WalletAddress != "0xaaa" {
		t.Errorf("WalletAddress mismatch: got %s, want 0xaaa", got.WalletAddress)
	}

	got, err = store.GetByWallet(ctx, "0xaaa")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if got.ID != "c1" {
		t.Errorf("ID mismatch: got %s, want c1", got.ID)
	}
}

func TestCreatorStore_DuplicateKey(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	if err := store.Insert(ctx, testCreator("c1", "0xaaa")); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Same id
	err := store.Insert(ctx, testCreator("c1", "0xbbb"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for duplicate id, got %v", err)
	}

	// Same wallet
	err = store.Insert(ctx, testCreator("c2", "0xaaa"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for duplicate wallet, got %v", err)
	}
}

func TestCreatorStore_NotFound(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.IncrementVotes(ctx, "missing", 5); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from IncrementVotes, got %v", err)
	}
}

func TestCreatorStore_IncrementVotes(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	if err := store.Insert(ctx, testCreator("c1", "0xaaa")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	total, err := store.IncrementVotes(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("IncrementVotes failed: %v", err)
	}
	if total != 10 {
		t.Errorf("Total after first increment: got %d, want 10", total)
	}

	total, err = store.IncrementVotes(ctx, "c1", 5)
	if err != nil {
		t.Fatalf("IncrementVotes failed: %v", err)
	}
	if total != 15 {
		t.Errorf("Total after second increment: got %d, want 15", total)
	}

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.TotalVotes != 15 {
		t.Errorf("Persisted total: got %d, want 15", got.TotalVotes)
	}
}

func TestCreatorStore_IncrementVotes_Concurrent(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	if err := store.Insert(ctx, testCreator("c1", "0xaaa")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := store.IncrementVotes(ctx, "c1", 2); err != nil {
				t.Errorf("IncrementVotes failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.TotalVotes != workers*2 {
		t.Errorf("Concurrent increments lost updates: got %d, want %d", got.TotalVotes, workers*2)
	}
}

func TestCreatorStore_RecomputeTotal(t *testing.T) {
	votes := NewVoteStore()
	store := NewCreatorStore(votes)
	ctx := context.Background()

	if err := store.Insert(ctx, testCreator("c1", "0xaaa")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for i, amount := range []uint64{3, 7} {
		v := &domain.Vote{
			ID:        string(rune('a' + i)),
			CreatorID: "c1",
			Amount:    amount,
			CreatedAt: 1704067200,
		}
		if err := votes.Insert(ctx, v); err != nil {
			t.Fatalf("Insert vote failed: %v", err)
		}
	}

	// Drift the cache away from the audit log
	if _, err := store.IncrementVotes(ctx, "c1", 100); err != nil {
		t.Fatalf("IncrementVotes failed: %v", err)
	}

	total, err := store.RecomputeTotal(ctx, "c1")
	if err != nil {
		t.Fatalf("RecomputeTotal failed: %v", err)
	}
	if total != 10 {
		t.Errorf("Rebuilt total: got %d, want 10", total)
	}
}

func TestCreatorStore_ListOrdering(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	a := testCreator("a", "0xaaa")
	b := testCreator("b", "0xbbb")
	b.CreatedAt = 1704067100 // older
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, b); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := store.IncrementVotes(ctx, "a", 5); err != nil {
		t.Fatalf("IncrementVotes failed: %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List length: got %d, want 2", len(list))
	}
	if list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("Ordering by total_votes DESC broken: got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestCreatorStore_CopyOnRead(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	if err := store.Insert(ctx, testCreator("c1", "0xaaa")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	got.Name = "mutated"
	got.Skills[0] = "mutated"

	again, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if again.Name == "mutated" || again.Skills[0] == "mutated" {
		t.Error("External mutation leaked into store")
	}
}

func TestCreatorStore_SetNFTMintedAndAITags(t *testing.T) {
	store := NewCreatorStore(nil)
	ctx := context.Background()

	if err := store.Insert(ctx, testCreator("c1", "0xaaa")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.SetNFTMinted(ctx, "c1", 42); err != nil {
		t.Fatalf("SetNFTMinted failed: %v", err)
	}
	if err := store.SetAITags(ctx, "c1", []string{"audio", "producer"}); err != nil {
		t.Fatalf("SetAITags failed: %v", err)
	}

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.NFTMinted || got.NFTTokenID == nil || *got.NFTTokenID != 42 {
		t.Errorf("NFT mint state not recorded: minted=%v tokenID=%v", got.NFTMinted, got.NFTTokenID)
	}
	if len(got.AITags) != 2 || got.AITags[0] != "audio" {
		t.Errorf("AI tags not recorded: %v", got.AITags)
	}
}
