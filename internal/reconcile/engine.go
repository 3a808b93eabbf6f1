// Package reconcile drives the two-phase vote protocol and the faucet claim
// flow, and keeps the off-chain vote ledger consistent with confirmed chain
// state. The chain is the source of truth for balances and totals; the
// off-chain ledger is an audit log plus a cached aggregate that this package
// repairs when they drift.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"talentlink-dao/internal/chain"
	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/idhash"
	"talentlink-dao/internal/observability"
	"talentlink-dao/internal/storage"
)

// Retry schedule for off-chain writes after a confirmed chain write. The
// chain state is already committed at that point, so we try hard before
// declaring a reconciliation failure.
const (
	maxStoreRetries = 5
	baseRetryDelay  = 100 * time.Millisecond
	maxRetryDelay   = 2 * time.Second
)

// LedgerWriter submits signed operations. Satisfied by *chain.Writer.
type LedgerWriter interface {
	Submit(ctx context.Context, op chain.Operation) (*domain.PendingOperation, error)
	Connected() bool
	SenderAddress() (string, bool)
}

// AccountCache is the account view surface the engine validates against and
// refreshes after confirmations. Satisfied by *chain.Reader.
type AccountCache interface {
	Snapshot(address string) (domain.AccountSnapshot, bool)
	Invalidate(ctx context.Context, address string)
	InvalidateBalance(ctx context.Context, address string)
	ResetCooldown(address string)
}

// ReconciliationError reports a confirmed chain write whose off-chain
// bookkeeping could not be completed. The chain state is committed; only the
// local ledger is behind, and the sweep repairs it from the audit log.
type ReconciliationError struct {
	CreatorID string
	TxHash    string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("transaction %s for creator %s confirmed on chain but not reconciled: %v", e.TxHash, e.CreatorID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// FlowError is a failed claim or vote flow with its taxonomy classification.
type FlowError struct {
	Reason domain.FailReason
	Err    error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("flow failed (%s): %v", e.Reason, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// VoteResult reports a fully reconciled vote.
type VoteResult struct {
	VoteID          string
	CreatorID       string
	Amount          uint64
	NewTotal        uint64 // creator aggregate after the increment
	TransactionHash string // the vote transaction, not the approval
}

// ClaimResult reports a confirmed faucet claim.
type ClaimResult struct {
	TransactionHash string
	Amount          uint64 // whole tokens granted per claim
}

// MintResult reports a confirmed profile NFT mint.
type MintResult struct {
	CreatorID       string
	TokenID         int64 // 0 when the receipt carried no mint event
	TransactionHash string
}

// Engine owns the claim and vote flows.
type Engine struct {
	writer   LedgerWriter
	cache    AccountCache
	creators storage.CreatorStore
	votes    storage.VoteStore
	events   storage.VoteEventStore // nil disables the analytics stream
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithVoteEvents attaches the best-effort analytics stream.
func WithVoteEvents(events storage.VoteEventStore) EngineOption {
	return func(e *Engine) {
		e.events = events
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics sink.
func WithEngineMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine.
func NewEngine(writer LedgerWriter, cache AccountCache, creators storage.CreatorStore, votes storage.VoteStore, opts ...EngineOption) *Engine {
	e := &Engine{
		writer:   writer,
		cache:    cache,
		creators: creators,
		votes:    votes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Claim runs the faucet claim flow to a terminal state. On confirmation the
// local cooldown cache is pinned to the full interval immediately, before
// the next eligibility poll lands.
func (e *Engine) Claim(ctx context.Context) (*ClaimResult, error) {
	sender, ok := e.writer.SenderAddress()
	if !ok {
		return nil, &FlowError{Reason: domain.FailValidation, Err: chain.ErrWalletNotConnected}
	}

	// An active cooldown fails validation before anything is broadcast;
	// submitting would only burn gas on a guaranteed revert. A stale or
	// untracked view does not block the attempt, the contract still enforces.
	if snap, tracked := e.cache.Snapshot(sender); tracked && !snap.Stale && !snap.CanClaim {
		return nil, &FlowError{
			Reason: domain.FailValidation,
			Err:    fmt.Errorf("claim cooldown active, %ds remaining", snap.CooldownRemaining),
		}
	}

	pending, err := e.writer.Submit(ctx, chain.ClaimOp())
	if err != nil {
		return nil, e.submitError("claim", err)
	}

	final := pending.Await()
	if final.Status != domain.OpConfirmed {
		return nil, &FlowError{Reason: final.Reason, Err: e.terminalErr("claim", pending.Hash, final)}
	}

	// Pin the cooldown, then refresh only the balance: a full eligibility
	// refetch could overwrite the pin with a stale node view.
	e.cache.ResetCooldown(sender)
	e.cache.InvalidateBalance(ctx, sender)

	if e.metrics != nil {
		e.metrics.ClaimsReconciled.Inc()
	}
	e.logger.Info("claim reconciled",
		zap.String("account", sender),
		zap.String("hash", pending.Hash))

	return &ClaimResult{
		TransactionHash: pending.Hash,
		Amount:          domain.FaucetAmount,
	}, nil
}

// Vote runs the two-phase vote flow: an allowance grant for exactly the vote
// amount, then the vote itself. The vote is never submitted before the
// approval confirms; an unconfirmed approval leaves the vote contract unable
// to pull the tokens and the transaction reverts.
func (e *Engine) Vote(ctx context.Context, creatorID string, amount uint64) (*VoteResult, error) {
	if !domain.ValidVoteAmount(amount) {
		return nil, &FlowError{
			Reason: domain.FailValidation,
			Err:    fmt.Errorf("vote amount %d outside [%d,%d]", amount, domain.MinVoteAmount, domain.MaxVoteAmount),
		}
	}

	curator, ok := e.writer.SenderAddress()
	if !ok {
		return nil, &FlowError{Reason: domain.FailValidation, Err: chain.ErrWalletNotConnected}
	}

	creator, err := e.loadCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	// Self-votes are rejected before anything reaches the ledger.
	if domain.NormalizeAddress(creator.WalletAddress) == curator {
		return nil, &FlowError{Reason: domain.FailValidation, Err: fmt.Errorf("cannot vote for own profile")}
	}

	// Phase 1: allowance. A failed or rejected approval ends the flow here;
	// the vote transaction is never built.
	approval, err := e.writer.Submit(ctx, chain.ApproveOp(amount))
	if err != nil {
		return nil, e.submitError("approve", err)
	}
	if final := approval.Await(); final.Status != domain.OpConfirmed {
		return nil, &FlowError{Reason: final.Reason, Err: e.terminalErr("approve", approval.Hash, final)}
	}

	// Phase 2: the vote.
	creatorAddr := common.HexToAddress(creator.WalletAddress)
	vote, err := e.writer.Submit(ctx, chain.VoteOp(creatorAddr, amount))
	if err != nil {
		return nil, e.submitError("vote", err)
	}
	if final := vote.Await(); final.Status != domain.OpConfirmed {
		return nil, &FlowError{Reason: final.Reason, Err: e.terminalErr("vote", vote.Hash, final)}
	}

	// Phase 3: reconcile the confirmed vote into the off-chain ledger.
	// Audit row first, then the aggregate: if we crash between the two the
	// cached total undercounts, which the sweep repairs from the log. The
	// reverse order could overcount with no record to rebuild from.
	result, err := e.recordVote(ctx, creator, curator, amount, vote.Hash)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ReconciliationFailures.Inc()
		}
		e.logger.Error("confirmed vote could not be persisted off-chain",
			zap.String("creator", creatorID),
			zap.String("hash", vote.Hash),
			zap.Error(err))
		return nil, &FlowError{
			Reason: domain.FailReconciliation,
			Err:    &ReconciliationError{CreatorID: creatorID, TxHash: vote.Hash, Err: err},
		}
	}

	e.publishEvent(ctx, creator, curator, amount, result)
	e.cache.Invalidate(ctx, curator)

	if e.metrics != nil {
		e.metrics.VotesReconciled.Inc()
	}
	e.logger.Info("vote reconciled",
		zap.String("creator", creatorID),
		zap.Uint64("amount", amount),
		zap.Uint64("new_total", result.NewTotal),
		zap.String("hash", vote.Hash))

	return result, nil
}

// MintProfile runs the profile NFT mint flow: only the profile's own wallet
// may mint, and only once. On confirmation the mint flag and token id from
// the receipt are persisted to the creator row.
func (e *Engine) MintProfile(ctx context.Context, creatorID, tokenURI string) (*MintResult, error) {
	sender, ok := e.writer.SenderAddress()
	if !ok {
		return nil, &FlowError{Reason: domain.FailValidation, Err: chain.ErrWalletNotConnected}
	}

	creator, err := e.loadCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if domain.NormalizeAddress(creator.WalletAddress) != sender {
		return nil, &FlowError{Reason: domain.FailValidation, Err: fmt.Errorf("profile NFT can only be minted by its own wallet")}
	}
	if creator.NFTMinted {
		return nil, &FlowError{Reason: domain.FailValidation, Err: fmt.Errorf("profile NFT already minted for %s", creatorID)}
	}

	pending, err := e.writer.Submit(ctx, chain.MintOp(tokenURI))
	if err != nil {
		return nil, e.submitError("mint", err)
	}

	final := pending.Await()
	if final.Status != domain.OpConfirmed {
		return nil, &FlowError{Reason: final.Reason, Err: e.terminalErr("mint", pending.Hash, final)}
	}

	err = e.withRetry(ctx, "set nft minted", func() error {
		return e.creators.SetNFTMinted(ctx, creator.ID, final.TokenID)
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.ReconciliationFailures.Inc()
		}
		e.logger.Error("confirmed mint could not be persisted off-chain",
			zap.String("creator", creatorID),
			zap.String("hash", pending.Hash),
			zap.Error(err))
		return nil, &FlowError{
			Reason: domain.FailReconciliation,
			Err:    &ReconciliationError{CreatorID: creatorID, TxHash: pending.Hash, Err: err},
		}
	}

	if e.metrics != nil {
		e.metrics.ProfilesMinted.Inc()
	}
	e.logger.Info("profile nft minted",
		zap.String("creator", creatorID),
		zap.Int64("token_id", final.TokenID),
		zap.String("hash", pending.Hash))

	return &MintResult{
		CreatorID:       creator.ID,
		TokenID:         final.TokenID,
		TransactionHash: pending.Hash,
	}, nil
}

// loadCreator fetches a creator for a flow's validation step. An unknown id
// is a validation failure; a store outage is a transient network failure,
// since nothing has reached the ledger yet.
func (e *Engine) loadCreator(ctx context.Context, creatorID string) (*domain.Creator, error) {
	creator, err := e.creators.GetByID(ctx, creatorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &FlowError{Reason: domain.FailValidation, Err: fmt.Errorf("creator %s not found", creatorID)}
		}
		return nil, &FlowError{Reason: domain.FailNetwork, Err: fmt.Errorf("load creator: %w", err)}
	}
	return creator, nil
}

// recordVote writes the audit row and bumps the cached aggregate, retrying
// each write on a bounded exponential backoff.
func (e *Engine) recordVote(ctx context.Context, creator *domain.Creator, curator string, amount uint64, txHash string) (*VoteResult, error) {
	voteID := idhash.ComputeVoteID(creator.ID, curator, txHash)
	row := &domain.Vote{
		ID:              voteID,
		CreatorID:       creator.ID,
		CuratorAddress:  curator,
		Amount:          amount,
		TransactionHash: txHash,
		CreatedAt:       time.Now().Unix(),
	}

	err := e.withRetry(ctx, "insert vote", func() error {
		err := e.votes.Insert(ctx, row)
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Same confirmed transaction recorded before a crash; the row is
			// already in the log.
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("append vote audit row: %w", err)
	}

	var newTotal uint64
	err = e.withRetry(ctx, "increment total", func() error {
		var incErr error
		newTotal, incErr = e.creators.IncrementVotes(ctx, creator.ID, amount)
		return incErr
	})
	if err != nil {
		return nil, fmt.Errorf("increment creator total: %w", err)
	}

	return &VoteResult{
		VoteID:          voteID,
		CreatorID:       creator.ID,
		Amount:          amount,
		NewTotal:        newTotal,
		TransactionHash: txHash,
	}, nil
}

// publishEvent writes the analytics row. Best-effort: failures are counted
// and dropped.
func (e *Engine) publishEvent(ctx context.Context, creator *domain.Creator, curator string, amount uint64, result *VoteResult) {
	if e.events == nil {
		return
	}
	err := e.events.Insert(ctx, &storage.VoteEvent{
		CreatorID:       creator.ID,
		CuratorAddress:  curator,
		Amount:          amount,
		NewTotal:        result.NewTotal,
		TransactionHash: result.TransactionHash,
		ConfirmedAt:     time.Now().Unix(),
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.AnalyticsWriteErrors.Inc()
		}
		e.logger.Warn("analytics write dropped", zap.Error(err))
	}
}

// withRetry runs fn with bounded exponential backoff.
func (e *Engine) withRetry(ctx context.Context, label string, fn func() error) error {
	delay := baseRetryDelay

	var lastErr error
	for attempt := 1; attempt <= maxStoreRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxStoreRetries {
			break
		}

		if e.metrics != nil {
			e.metrics.ReconcileRetries.Inc()
		}
		e.logger.Warn("store write failed, retrying",
			zap.String("op", label),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, maxStoreRetries, lastErr)
}

func (e *Engine) submitError(stage string, err error) error {
	var submitErr *chain.SubmitError
	if errors.As(err, &submitErr) {
		return &FlowError{Reason: submitErr.Reason, Err: fmt.Errorf("%s: %w", stage, err)}
	}
	return &FlowError{Reason: domain.FailNetwork, Err: fmt.Errorf("%s: %w", stage, err)}
}

func (e *Engine) terminalErr(stage, hash string, final domain.StatusUpdate) error {
	if final.Err != nil {
		return fmt.Errorf("%s %s: %w", stage, hash, final.Err)
	}
	return fmt.Errorf("%s %s failed (%s)", stage, hash, final.Reason)
}
