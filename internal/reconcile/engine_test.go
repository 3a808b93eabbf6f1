package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"talentlink-dao/internal/chain"
	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/storage"
	"talentlink-dao/internal/storage/memory"
)

// stubWriter is a programmable LedgerWriter.
type stubWriter struct {
	mu        sync.Mutex
	sender    string
	submitted []chain.Operation

	// outcome per operation kind; nil means confirm
	outcomes map[domain.OpKind]*domain.StatusUpdate
	// submitErr per operation kind; returned before anything is "sent"
	submitErrs map[domain.OpKind]error

	hashSeq atomic.Uint64
}

func newStubWriter(sender string) *stubWriter {
	return &stubWriter{
		sender:     sender,
		outcomes:   make(map[domain.OpKind]*domain.StatusUpdate),
		submitErrs: make(map[domain.OpKind]error),
	}
}

func (w *stubWriter) Connected() bool {
	return w.sender != ""
}

func (w *stubWriter) SenderAddress() (string, bool) {
	if w.sender == "" {
		return "", false
	}
	return w.sender, true
}

func (w *stubWriter) Submit(_ context.Context, op chain.Operation) (*domain.PendingOperation, error) {
	w.mu.Lock()
	if err := w.submitErrs[op.Kind]; err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.submitted = append(w.submitted, op)
	outcome := w.outcomes[op.Kind]
	w.mu.Unlock()

	final := domain.StatusUpdate{Status: domain.OpConfirmed}
	if outcome != nil {
		final = *outcome
	}

	updates := make(chan domain.StatusUpdate, 3)
	updates <- domain.StatusUpdate{Status: domain.OpSubmitted}
	updates <- domain.StatusUpdate{Status: domain.OpPending}
	updates <- final
	close(updates)

	return &domain.PendingOperation{
		Kind:    op.Kind,
		From:    w.sender,
		Hash:    fmt.Sprintf("0xhash%d", w.hashSeq.Add(1)),
		Updates: updates,
	}, nil
}

func (w *stubWriter) submittedKinds() []domain.OpKind {
	w.mu.Lock()
	defer w.mu.Unlock()

	kinds := make([]domain.OpKind, len(w.submitted))
	for i, op := range w.submitted {
		kinds[i] = op.Kind
	}
	return kinds
}

// stubCache records invalidations and cooldown resets, and serves scripted
// account snapshots.
type stubCache struct {
	mu               sync.Mutex
	snapshots        map[string]domain.AccountSnapshot
	invalidated      []string
	balanceRefreshes []string
	resets           []string
}

func (c *stubCache) Snapshot(address string) (domain.AccountSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[address]
	return snap, ok
}

func (c *stubCache) Invalidate(_ context.Context, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, address)
}

func (c *stubCache) InvalidateBalance(_ context.Context, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceRefreshes = append(c.balanceRefreshes, address)
}

func (c *stubCache) ResetCooldown(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets = append(c.resets, address)
}

// failingCreatorStore makes IncrementVotes always fail.
type failingCreatorStore struct {
	storage.CreatorStore
}

func (f *failingCreatorStore) IncrementVotes(context.Context, string, uint64) (uint64, error) {
	return 0, errors.New("store unavailable")
}

// unreachableCreatorStore makes every lookup fail with a transport error.
type unreachableCreatorStore struct {
	storage.CreatorStore
}

func (u *unreachableCreatorStore) GetByID(context.Context, string) (*domain.Creator, error) {
	return nil, errors.New("connection refused")
}

// mintRecordFailureStore makes SetNFTMinted always fail.
type mintRecordFailureStore struct {
	storage.CreatorStore
}

func (m *mintRecordFailureStore) SetNFTMinted(context.Context, string, int64) error {
	return errors.New("store unavailable")
}

func setupEngine(t *testing.T, writer *stubWriter) (*Engine, *memory.CreatorStore, *memory.VoteStore, *memory.VoteEventStore, *stubCache) {
	t.Helper()

	votes := memory.NewVoteStore()
	creators := memory.NewCreatorStore(votes)
	events := memory.NewVoteEventStore()
	cache := &stubCache{}

	engine := NewEngine(writer, cache, creators, votes, WithVoteEvents(events))
	return engine, creators, votes, events, cache
}

func insertCreator(t *testing.T, creators *memory.CreatorStore, id, wallet string) {
	t.Helper()
	err := creators.Insert(context.Background(), &domain.Creator{
		ID:            id,
		WalletAddress: wallet,
		Name:          "Creator " + id,
		CreatedAt:     1704067200,
		UpdatedAt:     1704067200,
	})
	if err != nil {
		t.Fatalf("insert creator: %v", err)
	}
}

func TestEngine_Vote_TwoPhase(t *testing.T) {
	writer := newStubWriter("0xcurator")
	engine, creators, votes, events, cache := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")
	ctx := context.Background()

	result, err := engine.Vote(ctx, "c1", 5)
	if err != nil {
		t.Fatalf("Vote failed: %v", err)
	}

	// Approval must precede the vote
	kinds := writer.submittedKinds()
	if len(kinds) != 2 || kinds[0] != domain.OpApprove || kinds[1] != domain.OpVote {
		t.Fatalf("Expected [APPROVE VOTE], got %v", kinds)
	}

	if result.NewTotal != 5 {
		t.Errorf("NewTotal: got %d, want 5", result.NewTotal)
	}

	// Audit row written
	list, err := votes.ListByCreator(ctx, "c1")
	if err != nil || len(list) != 1 {
		t.Fatalf("Expected 1 audit row, got %d (err %v)", len(list), err)
	}
	if list[0].Amount != 5 || list[0].CuratorAddress != "0xcurator" {
		t.Errorf("Audit row wrong: %+v", list[0])
	}

	// Analytics event recorded with the post-increment total
	evs := events.Events()
	if len(evs) != 1 || evs[0].NewTotal != 5 {
		t.Errorf("Analytics events wrong: %+v", evs)
	}

	// Curator view refreshed
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "0xcurator" {
		t.Errorf("Invalidations wrong: %v", cache.invalidated)
	}
}

func TestEngine_Vote_CumulativeTotals(t *testing.T) {
	writer := newStubWriter("0xcurator")
	engine, creators, _, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")
	ctx := context.Background()

	if _, err := engine.Vote(ctx, "c1", 10); err != nil {
		t.Fatalf("First vote failed: %v", err)
	}
	result, err := engine.Vote(ctx, "c1", 5)
	if err != nil {
		t.Fatalf("Second vote failed: %v", err)
	}
	if result.NewTotal != 15 {
		t.Errorf("Repeat votes must accumulate: got %d, want 15", result.NewTotal)
	}
}

func TestEngine_Vote_AmountOutOfRange(t *testing.T) {
	writer := newStubWriter("0xcurator")
	engine, creators, _, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")

	for _, amount := range []uint64{0, 11, 100} {
		_, err := engine.Vote(context.Background(), "c1", amount)
		var flowErr *FlowError
		if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
			t.Errorf("Amount %d: expected validation FlowError, got %v", amount, err)
		}
	}
	if len(writer.submittedKinds()) != 0 {
		t.Error("Invalid amounts must not reach the ledger")
	}
}

func TestEngine_Vote_SelfVoteRejected(t *testing.T) {
	writer := newStubWriter("0xcreator")
	engine, creators, votes, _, cache := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xCREATOR") // normalizes to the sender
	ctx := context.Background()

	_, err := engine.Vote(ctx, "c1", 3)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}

	// Zero side effects anywhere
	if len(writer.submittedKinds()) != 0 {
		t.Error("Self-vote must not submit any transaction")
	}
	if sum, _ := votes.SumByCreator(ctx, "c1"); sum != 0 {
		t.Error("Self-vote must not touch the audit log")
	}
	if len(cache.invalidated) != 0 {
		t.Error("Self-vote must not invalidate caches")
	}
}

func TestEngine_Vote_UnknownCreator(t *testing.T) {
	writer := newStubWriter("0xcurator")
	engine, _, _, _, _ := setupEngine(t, writer)

	_, err := engine.Vote(context.Background(), "missing", 3)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}
}

func TestEngine_Vote_ApprovalFailureBlocksVote(t *testing.T) {
	writer := newStubWriter("0xcurator")
	writer.outcomes[domain.OpApprove] = &domain.StatusUpdate{
		Status: domain.OpFailed,
		Reason: domain.FailSignerRejected,
	}
	engine, creators, votes, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")
	ctx := context.Background()

	_, err := engine.Vote(ctx, "c1", 5)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailSignerRejected {
		t.Fatalf("Expected signer-rejected FlowError, got %v", err)
	}

	kinds := writer.submittedKinds()
	if len(kinds) != 1 || kinds[0] != domain.OpApprove {
		t.Errorf("Vote must never be submitted after a failed approval, got %v", kinds)
	}
	if sum, _ := votes.SumByCreator(ctx, "c1"); sum != 0 {
		t.Error("Failed approval must not write to the audit log")
	}
}

func TestEngine_Vote_RevertClassifiedAsValidation(t *testing.T) {
	writer := newStubWriter("0xcurator")
	writer.outcomes[domain.OpVote] = &domain.StatusUpdate{
		Status: domain.OpFailed,
		Reason: domain.FailValidation,
		Err:    errors.New("transaction reverted"),
	}
	engine, creators, votes, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")
	ctx := context.Background()

	_, err := engine.Vote(ctx, "c1", 5)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}
	if sum, _ := votes.SumByCreator(ctx, "c1"); sum != 0 {
		t.Error("Reverted vote must not write to the audit log")
	}
}

func TestEngine_Vote_SubmitErrorPropagatesReason(t *testing.T) {
	writer := newStubWriter("0xcurator")
	writer.submitErrs[domain.OpApprove] = &chain.SubmitError{
		Reason: domain.FailInsufficient,
		Err:    errors.New("insufficient funds for gas"),
	}
	engine, creators, _, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")

	_, err := engine.Vote(context.Background(), "c1", 5)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailInsufficient {
		t.Fatalf("Expected insufficient-funds FlowError, got %v", err)
	}
}

func TestEngine_Vote_StoreDownIsReconciliationError(t *testing.T) {
	writer := newStubWriter("0xcurator")

	votes := memory.NewVoteStore()
	creators := memory.NewCreatorStore(votes)
	cache := &stubCache{}
	insertCreator(t, creators, "c1", "0xcreator")

	engine := NewEngine(writer, cache, &failingCreatorStore{CreatorStore: creators}, votes)

	_, err := engine.Vote(context.Background(), "c1", 5)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailReconciliation {
		t.Fatalf("Expected reconciliation FlowError, got %v", err)
	}
	var recErr *ReconciliationError
	if !errors.As(err, &recErr) || recErr.CreatorID != "c1" {
		t.Fatalf("Expected ReconciliationError with creator id, got %v", err)
	}

	// The chain writes happened; only the off-chain increment failed. The
	// audit row must still be in the log for the sweep to repair from.
	sum, _ := votes.SumByCreator(context.Background(), "c1")
	if sum != 5 {
		t.Errorf("Audit log sum: got %d, want 5", sum)
	}
}

func TestEngine_Vote_Concurrent(t *testing.T) {
	writer := newStubWriter("0xcurator")
	engine, creators, votes, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")
	ctx := context.Background()

	const voters = 20
	var wg sync.WaitGroup
	wg.Add(voters)
	for i := 0; i < voters; i++ {
		go func() {
			defer wg.Done()
			if _, err := engine.Vote(ctx, "c1", 2); err != nil {
				t.Errorf("Vote failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := creators.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.TotalVotes != voters*2 {
		t.Errorf("Total after concurrent votes: got %d, want %d", got.TotalVotes, voters*2)
	}
	sum, _ := votes.SumByCreator(ctx, "c1")
	if sum != got.TotalVotes {
		t.Errorf("Aggregate %d diverged from audit log sum %d", got.TotalVotes, sum)
	}
}

func TestEngine_Vote_NoWallet(t *testing.T) {
	writer := newStubWriter("")
	engine, creators, _, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xcreator")

	_, err := engine.Vote(context.Background(), "c1", 5)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}
	if !errors.Is(err, chain.ErrWalletNotConnected) {
		t.Error("Expected ErrWalletNotConnected in the chain")
	}
}

func TestEngine_Claim_ResetsCooldown(t *testing.T) {
	writer := newStubWriter("0xclaimer")
	engine, _, _, _, cache := setupEngine(t, writer)

	result, err := engine.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if result.Amount != domain.FaucetAmount {
		t.Errorf("Claim amount: got %d, want %d", result.Amount, domain.FaucetAmount)
	}

	if len(cache.resets) != 1 || cache.resets[0] != "0xclaimer" {
		t.Errorf("Cooldown resets wrong: %v", cache.resets)
	}
	// Balance refreshed without refetching eligibility, which would race
	// the just-pinned cooldown
	if len(cache.balanceRefreshes) != 1 || cache.balanceRefreshes[0] != "0xclaimer" {
		t.Errorf("Balance refreshes wrong: %v", cache.balanceRefreshes)
	}
	if len(cache.invalidated) != 0 {
		t.Errorf("Full invalidation would clobber the pinned cooldown: %v", cache.invalidated)
	}
}

func TestEngine_Claim_CooldownActiveRejected(t *testing.T) {
	writer := newStubWriter("0xclaimer")
	engine, _, _, _, cache := setupEngine(t, writer)
	cache.snapshots = map[string]domain.AccountSnapshot{
		"0xclaimer": {Address: "0xclaimer", CanClaim: false, CooldownRemaining: 3600},
	}

	_, err := engine.Claim(context.Background())
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}
	if len(writer.submittedKinds()) != 0 {
		t.Error("Ineligible claim must not be broadcast")
	}
}

func TestEngine_Claim_StaleSnapshotStillSubmits(t *testing.T) {
	// A stale cache entry is not evidence of ineligibility; the contract
	// is the authority then.
	writer := newStubWriter("0xclaimer")
	engine, _, _, _, cache := setupEngine(t, writer)
	cache.snapshots = map[string]domain.AccountSnapshot{
		"0xclaimer": {Address: "0xclaimer", CanClaim: false, CooldownRemaining: 3600, Stale: true},
	}

	if _, err := engine.Claim(context.Background()); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	kinds := writer.submittedKinds()
	if len(kinds) != 1 || kinds[0] != domain.OpClaim {
		t.Errorf("Expected [CLAIM], got %v", kinds)
	}
}

func TestEngine_Vote_CreatorLookupOutageIsNetworkError(t *testing.T) {
	writer := newStubWriter("0xcurator")
	votes := memory.NewVoteStore()
	creators := memory.NewCreatorStore(votes)
	engine := NewEngine(writer, &stubCache{}, &unreachableCreatorStore{CreatorStore: creators}, votes)

	_, err := engine.Vote(context.Background(), "c1", 5)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailNetwork {
		t.Fatalf("Expected network FlowError, got %v", err)
	}
	if len(writer.submittedKinds()) != 0 {
		t.Error("Nothing must be broadcast when the store is unreachable")
	}
}

func TestEngine_MintProfile_Confirmed(t *testing.T) {
	writer := newStubWriter("0xminter")
	writer.outcomes[domain.OpMint] = &domain.StatusUpdate{Status: domain.OpConfirmed, TokenID: 7}
	engine, creators, _, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xminter")
	ctx := context.Background()

	result, err := engine.MintProfile(ctx, "c1", "ipfs://profile/1")
	if err != nil {
		t.Fatalf("MintProfile failed: %v", err)
	}
	if result.TokenID != 7 {
		t.Errorf("TokenID: got %d, want 7", result.TokenID)
	}

	got, err := creators.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.NFTMinted {
		t.Error("NFTMinted flag not persisted")
	}
	if got.NFTTokenID == nil || *got.NFTTokenID != 7 {
		t.Errorf("NFTTokenID not persisted: %v", got.NFTTokenID)
	}
}

func TestEngine_MintProfile_WrongWalletRejected(t *testing.T) {
	writer := newStubWriter("0xsomeoneelse")
	engine, creators, _, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xminter")

	_, err := engine.MintProfile(context.Background(), "c1", "ipfs://profile/1")
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}
	if len(writer.submittedKinds()) != 0 {
		t.Error("Mint for another wallet's profile must not be broadcast")
	}
}

func TestEngine_MintProfile_AlreadyMintedRejected(t *testing.T) {
	writer := newStubWriter("0xminter")
	engine, creators, _, _, _ := setupEngine(t, writer)
	insertCreator(t, creators, "c1", "0xminter")
	ctx := context.Background()

	if err := creators.SetNFTMinted(ctx, "c1", 3); err != nil {
		t.Fatalf("SetNFTMinted failed: %v", err)
	}

	_, err := engine.MintProfile(ctx, "c1", "ipfs://profile/1")
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}
	if len(writer.submittedKinds()) != 0 {
		t.Error("Repeat mint must not be broadcast")
	}
}

func TestEngine_MintProfile_StoreDownIsReconciliationError(t *testing.T) {
	writer := newStubWriter("0xminter")
	writer.outcomes[domain.OpMint] = &domain.StatusUpdate{Status: domain.OpConfirmed, TokenID: 9}

	votes := memory.NewVoteStore()
	creators := memory.NewCreatorStore(votes)
	insertCreator(t, creators, "c1", "0xminter")
	engine := NewEngine(writer, &stubCache{}, &mintRecordFailureStore{CreatorStore: creators}, votes)

	_, err := engine.MintProfile(context.Background(), "c1", "ipfs://profile/1")
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailReconciliation {
		t.Fatalf("Expected reconciliation FlowError, got %v", err)
	}
	var recErr *ReconciliationError
	if !errors.As(err, &recErr) || recErr.CreatorID != "c1" {
		t.Fatalf("Expected ReconciliationError with creator id, got %v", err)
	}
}

func TestEngine_Claim_RevertDoesNotResetCooldown(t *testing.T) {
	writer := newStubWriter("0xclaimer")
	writer.outcomes[domain.OpClaim] = &domain.StatusUpdate{
		Status: domain.OpFailed,
		Reason: domain.FailValidation,
		Err:    errors.New("transaction reverted"),
	}
	engine, _, _, _, cache := setupEngine(t, writer)

	_, err := engine.Claim(context.Background())
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Reason != domain.FailValidation {
		t.Fatalf("Expected validation FlowError, got %v", err)
	}
	if len(cache.resets) != 0 {
		t.Error("Failed claim must not reset the cooldown cache")
	}
}
