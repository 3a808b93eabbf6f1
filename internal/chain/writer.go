package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/evm"
	"talentlink-dao/internal/observability"
)

// ErrWalletNotConnected is returned when no signer is attached.
var ErrWalletNotConnected = errors.New("wallet not connected")

// Gas limits per operation kind. Fixed rather than estimated: the three
// calls have known, bounded execution paths.
const (
	gasLimitClaim   = 120_000
	gasLimitApprove = 60_000
	gasLimitVote    = 200_000
	gasLimitMint    = 250_000
)

// DefaultReceiptPollInterval is the fallback cadence for receipt checks
// when no newHeads source is attached or the stream stalls.
const DefaultReceiptPollInterval = 5 * time.Second

// Operation describes a state-changing ledger call to submit.
type Operation struct {
	Kind     domain.OpKind
	Creator  common.Address // vote target, OpVote only
	Amount   uint64         // whole tokens, OpApprove and OpVote
	TokenURI string         // profile metadata location, OpMint only
}

// ClaimOp builds a faucet claim operation.
func ClaimOp() Operation {
	return Operation{Kind: domain.OpClaim}
}

// ApproveOp builds an allowance grant to the voting contract.
func ApproveOp(amount uint64) Operation {
	return Operation{Kind: domain.OpApprove, Amount: amount}
}

// VoteOp builds a vote for a creator's wallet.
func VoteOp(creator common.Address, amount uint64) Operation {
	return Operation{Kind: domain.OpVote, Creator: creator, Amount: amount}
}

// MintOp builds a profile NFT mint for the signer's own address.
func MintOp(tokenURI string) Operation {
	return Operation{Kind: domain.OpMint, TokenURI: tokenURI}
}

// SubmitError is a submission failure with its taxonomy classification.
// No PendingOperation exists when Submit returns one: nothing was sent.
type SubmitError struct {
	Reason domain.FailReason
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit failed (%s): %v", e.Reason, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// WriterOption configures Writer.
type WriterOption func(*Writer)

// WithHeads attaches a newHeads source that triggers receipt checks.
func WithHeads(heads evm.HeadsSource) WriterOption {
	return func(w *Writer) {
		w.headsSource = heads
	}
}

// WithReceiptPollInterval sets the fallback receipt polling cadence.
func WithReceiptPollInterval(d time.Duration) WriterOption {
	return func(w *Writer) {
		w.pollInterval = d
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(logger *zap.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithWriterMetrics sets the metrics sink.
func WithWriterMetrics(m *observability.Metrics) WriterOption {
	return func(w *Writer) {
		w.metrics = m
	}
}

// Writer submits signed claim/approve/vote operations and tracks each one
// to a terminal Confirmed or Failed state. It never re-submits: a write
// that failed must be re-initiated by the user.
type Writer struct {
	client    evm.Client
	contracts *evm.Contracts
	signer    Signer // nil = wallet not connected
	chainID   *big.Int

	headsSource  evm.HeadsSource
	pollInterval time.Duration
	logger       *zap.Logger
	metrics      *observability.Metrics

	// headSignal is closed and replaced on every new head; receipt
	// trackers wait on it between checks.
	headSignal chan struct{}
	headMu     sync.RWMutex

	done    chan struct{}
	closeMu sync.Once
	wg      sync.WaitGroup
}

// NewWriter creates a Writer. The chain ID is fetched once up front so that
// every signature carries correct replay protection. signer may be nil; in
// that state every Submit fails with a wallet-not-connected validation error.
func NewWriter(ctx context.Context, client evm.Client, contracts *evm.Contracts, signer Signer, opts ...WriterOption) (*Writer, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	w := &Writer{
		client:       client,
		contracts:    contracts,
		signer:       signer,
		chainID:      chainID,
		pollInterval: DefaultReceiptPollInterval,
		logger:       zap.NewNop(),
		headSignal:   make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.headsSource != nil {
		w.wg.Add(1)
		go w.pumpHeads()
	}

	return w, nil
}

// Connected reports whether a signer is attached.
func (w *Writer) Connected() bool {
	return w.signer != nil
}

// SenderAddress returns the normalized address of the attached signer.
func (w *Writer) SenderAddress() (string, bool) {
	if w.signer == nil {
		return "", false
	}
	return domain.NormalizeAddress(w.signer.Address().Hex()), true
}

// Submit validates, signs and broadcasts an operation. On success the
// returned PendingOperation's Updates channel yields
// Submitted -> Pending -> {Confirmed | Failed} and is then closed.
// On failure nothing was broadcast and the error is a *SubmitError.
func (w *Writer) Submit(ctx context.Context, op Operation) (*domain.PendingOperation, error) {
	if w.signer == nil {
		return nil, &SubmitError{Reason: domain.FailValidation, Err: ErrWalletNotConnected}
	}

	data, to, gasLimit, err := w.buildCall(op)
	if err != nil {
		return nil, &SubmitError{Reason: domain.FailValidation, Err: err}
	}

	from := w.signer.Address()

	if op.Kind == domain.OpVote {
		if err := w.checkAllowance(ctx, from, op.Amount); err != nil {
			return nil, err
		}
	}

	nonce, err := w.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, &SubmitError{Reason: domain.FailNetwork, Err: fmt.Errorf("fetch nonce: %w", err)}
	}
	gasPrice, err := w.client.GasPrice(ctx)
	if err != nil {
		return nil, &SubmitError{Reason: domain.FailNetwork, Err: fmt.Errorf("fetch gas price: %w", err)}
	}

	tx := types.NewTransaction(nonce, to, common.Big0, gasLimit, gasPrice, data)

	signed, err := w.signer.SignTx(tx, w.chainID)
	if err != nil {
		if errors.Is(err, ErrSignerRejected) {
			return nil, &SubmitError{Reason: domain.FailSignerRejected, Err: err}
		}
		return nil, &SubmitError{Reason: domain.FailNetwork, Err: fmt.Errorf("sign: %w", err)}
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, &SubmitError{Reason: domain.FailNetwork, Err: fmt.Errorf("encode tx: %w", err)}
	}

	hash, err := w.client.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, &SubmitError{Reason: classifyNodeError(err), Err: fmt.Errorf("broadcast: %w", err)}
	}

	updates := make(chan domain.StatusUpdate, 8)
	pending := &domain.PendingOperation{
		Kind:        op.Kind,
		From:        domain.NormalizeAddress(from.Hex()),
		Hash:        hash.Hex(),
		SubmittedAt: time.Now().Unix(),
		Updates:     updates,
	}

	updates <- domain.StatusUpdate{Status: domain.OpSubmitted}
	updates <- domain.StatusUpdate{Status: domain.OpPending}

	if w.metrics != nil {
		w.metrics.OpsSubmitted.WithLabelValues(string(op.Kind)).Inc()
	}
	w.logger.Info("operation submitted",
		zap.String("kind", string(op.Kind)),
		zap.String("hash", pending.Hash))

	w.wg.Add(1)
	go w.trackReceipt(op.Kind, hash, updates)

	return pending, nil
}

// buildCall packs the contract call for an operation.
func (w *Writer) buildCall(op Operation) (data []byte, to common.Address, gasLimit uint64, err error) {
	switch op.Kind {
	case domain.OpClaim:
		data, err = w.contracts.PackClaim()
		return data, w.contracts.Token, gasLimitClaim, err
	case domain.OpApprove:
		if !domain.ValidVoteAmount(op.Amount) {
			return nil, common.Address{}, 0, fmt.Errorf("approve amount %d outside [%d,%d]", op.Amount, domain.MinVoteAmount, domain.MaxVoteAmount)
		}
		data, err = w.contracts.PackApprove(w.contracts.DAO, evm.TokensToWei(op.Amount))
		return data, w.contracts.Token, gasLimitApprove, err
	case domain.OpVote:
		if !domain.ValidVoteAmount(op.Amount) {
			return nil, common.Address{}, 0, fmt.Errorf("vote amount %d outside [%d,%d]", op.Amount, domain.MinVoteAmount, domain.MaxVoteAmount)
		}
		if w.signer != nil && op.Creator == w.signer.Address() {
			return nil, common.Address{}, 0, fmt.Errorf("self-vote rejected")
		}
		data, err = w.contracts.PackVoteForCreator(op.Creator, evm.TokensToWei(op.Amount))
		return data, w.contracts.DAO, gasLimitVote, err
	case domain.OpMint:
		data, err = w.contracts.PackMintProfile(w.signer.Address(), op.TokenURI)
		return data, w.contracts.NFT, gasLimitMint, err
	default:
		return nil, common.Address{}, 0, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// checkAllowance verifies the voting contract's allowance covers the vote
// before any gas is spent. A vote submitted ahead of its approval would only
// fail later as an on-chain revert.
func (w *Writer) checkAllowance(ctx context.Context, owner common.Address, amount uint64) error {
	data, err := w.contracts.PackAllowance(owner, w.contracts.DAO)
	if err != nil {
		return &SubmitError{Reason: domain.FailValidation, Err: err}
	}
	out, err := w.client.CallContract(ctx, evm.CallMsg{To: w.contracts.Token, Data: data})
	if err != nil {
		return &SubmitError{Reason: domain.FailNetwork, Err: fmt.Errorf("call allowance: %w", err)}
	}
	allowance, err := w.contracts.UnpackAllowance(out)
	if err != nil {
		return &SubmitError{Reason: domain.FailNetwork, Err: err}
	}
	if allowance.Cmp(evm.TokensToWei(amount)) < 0 {
		return &SubmitError{
			Reason: domain.FailValidation,
			Err:    fmt.Errorf("allowance %s below vote amount %d, approval not confirmed", allowance, amount),
		}
	}
	return nil
}

// trackReceipt polls for the transaction receipt until a terminal state.
// Checks run on every new head, with a ticker fallback. There is no
// internal timeout: confirmation latency is unbounded from our side, and
// giving up early risks double-submission when the user retries.
func (w *Writer) trackReceipt(kind domain.OpKind, hash common.Hash, updates chan<- domain.StatusUpdate) {
	defer w.wg.Done()
	defer close(updates)

	started := time.Now()

	for {
		select {
		case <-w.done:
			return
		case <-w.currentHeadSignal():
		case <-time.After(w.pollInterval):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		cancel()
		if err != nil {
			// Transient; keep listening for a real terminal event.
			w.logger.Warn("receipt check failed",
				zap.String("hash", hash.Hex()), zap.Error(err))
			continue
		}
		if receipt == nil {
			continue
		}

		if w.metrics != nil {
			w.metrics.ConfirmationLatency.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
		}

		if receipt.Status == evm.ReceiptStatusSucceeded {
			if w.metrics != nil {
				w.metrics.OpsConfirmed.WithLabelValues(string(kind)).Inc()
			}
			w.logger.Info("operation confirmed",
				zap.String("kind", string(kind)),
				zap.String("hash", hash.Hex()),
				zap.Uint64("block", receipt.BlockNumber))

			update := domain.StatusUpdate{Status: domain.OpConfirmed}
			if kind == domain.OpMint {
				update.TokenID, _ = w.contracts.MintedTokenID(receipt.Logs)
			}
			w.emit(updates, update)
			return
		}

		// Reverted on-chain: a precondition the contract enforces was not
		// met at execution time (cooldown active, allowance short, ...).
		if w.metrics != nil {
			w.metrics.OpsFailed.WithLabelValues(string(kind), string(domain.FailValidation)).Inc()
		}
		w.logger.Warn("operation reverted",
			zap.String("kind", string(kind)), zap.String("hash", hash.Hex()))
		w.emit(updates, domain.StatusUpdate{
			Status: domain.OpFailed,
			Reason: domain.FailValidation,
			Err:    fmt.Errorf("transaction %s reverted", hash.Hex()),
		})
		return
	}
}

func (w *Writer) emit(updates chan<- domain.StatusUpdate, u domain.StatusUpdate) {
	select {
	case updates <- u:
	case <-w.done:
	}
}

// pumpHeads converts newHeads notifications into tracker wakeups.
func (w *Writer) pumpHeads() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case _, ok := <-w.headsSource.Heads():
			if !ok {
				return
			}
			w.headMu.Lock()
			close(w.headSignal)
			w.headSignal = make(chan struct{})
			w.headMu.Unlock()
		}
	}
}

func (w *Writer) currentHeadSignal() <-chan struct{} {
	w.headMu.RLock()
	defer w.headMu.RUnlock()
	return w.headSignal
}

// Close stops all receipt trackers. In-flight operations are abandoned in
// memory only; their outcome is re-derived from ledger state on restart.
func (w *Writer) Close() {
	w.closeMu.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

// classifyNodeError maps a broadcast failure onto the failure taxonomy.
func classifyNodeError(err error) domain.FailReason {
	var rpcErr *evm.RPCError
	if errors.As(err, &rpcErr) {
		if strings.Contains(strings.ToLower(rpcErr.Message), "insufficient funds") {
			return domain.FailInsufficient
		}
	}
	return domain.FailNetwork
}
