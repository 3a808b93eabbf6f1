package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/evm"
	"talentlink-dao/internal/observability"
)

// Polling tiers. Cooldown display needs second granularity; balance and
// eligibility do not, and polling everything at 1s would needlessly load
// the ledger endpoint.
const (
	DefaultBalanceInterval     = 5 * time.Second
	DefaultEligibilityInterval = 10 * time.Second
	DefaultCountdownInterval   = 1 * time.Second
)

// ReaderConfig configures polling cadence.
type ReaderConfig struct {
	BalanceInterval     time.Duration
	EligibilityInterval time.Duration
	CountdownInterval   time.Duration
}

// DefaultReaderConfig returns the tiered polling defaults.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		BalanceInterval:     DefaultBalanceInterval,
		EligibilityInterval: DefaultEligibilityInterval,
		CountdownInterval:   DefaultCountdownInterval,
	}
}

// accountState is the mutable cache entry for one tracked account.
type accountState struct {
	addr     common.Address
	snapshot domain.AccountSnapshot
}

// Reader maintains a last-known cache of balance and claim eligibility for
// tracked accounts. Reads never fail on ledger unavailability: callers get
// the cached values with Stale set instead. The cache is written only by
// the reader's own poll loops and by the reconciliation engine's
// post-confirmation invalidation, via the methods here.
type Reader struct {
	client    evm.Client
	contracts *evm.Contracts
	cfg       ReaderConfig
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu       sync.RWMutex
	accounts map[string]*accountState // keyed by normalized address

	done    chan struct{}
	closeMu sync.Once
	wg      sync.WaitGroup
}

// ReaderOption configures Reader.
type ReaderOption func(*Reader)

// WithReaderConfig sets polling cadence.
func WithReaderConfig(cfg ReaderConfig) ReaderOption {
	return func(r *Reader) {
		r.cfg = cfg
	}
}

// WithReaderLogger sets the logger.
func WithReaderLogger(logger *zap.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithReaderMetrics sets the metrics sink.
func WithReaderMetrics(m *observability.Metrics) ReaderOption {
	return func(r *Reader) {
		r.metrics = m
	}
}

// NewReader creates a Reader. Call Start to begin polling.
func NewReader(client evm.Client, contracts *evm.Contracts, opts ...ReaderOption) *Reader {
	r := &Reader{
		client:    client,
		contracts: contracts,
		cfg:       DefaultReaderConfig(),
		logger:    zap.NewNop(),
		accounts:  make(map[string]*accountState),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track registers an account for polling and performs an initial refresh.
func (r *Reader) Track(ctx context.Context, addr common.Address) {
	key := domain.NormalizeAddress(addr.Hex())

	r.mu.Lock()
	if _, ok := r.accounts[key]; ok {
		r.mu.Unlock()
		return
	}
	r.accounts[key] = &accountState{
		addr:     addr,
		snapshot: domain.AccountSnapshot{Address: key, Stale: true},
	}
	r.mu.Unlock()

	r.refreshBalance(ctx, key)
	r.refreshEligibility(ctx, key)
}

// Snapshot returns the cached view of an account. ok is false for
// untracked accounts.
func (r *Reader) Snapshot(address string) (domain.AccountSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.accounts[domain.NormalizeAddress(address)]
	if !ok {
		return domain.AccountSnapshot{}, false
	}
	return st.snapshot, true
}

// Start launches the tiered poll loops.
func (r *Reader) Start() {
	r.wg.Add(3)
	go r.loop(r.cfg.BalanceInterval, r.pollBalances)
	go r.loop(r.cfg.EligibilityInterval, r.pollEligibility)
	go r.loop(r.cfg.CountdownInterval, r.pollCountdowns)
}

// Close stops polling.
func (r *Reader) Close() {
	r.closeMu.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

// Invalidate forces an immediate refresh of an account after a confirmed
// operation, rather than waiting out the poll interval.
func (r *Reader) Invalidate(ctx context.Context, address string) {
	key := domain.NormalizeAddress(address)
	r.refreshBalance(ctx, key)
	r.refreshEligibility(ctx, key)
}

// InvalidateBalance refreshes only the balance. Used after a confirmed claim
// together with ResetCooldown: refetching eligibility there could overwrite
// the just-pinned cooldown with a momentarily stale node view.
func (r *Reader) InvalidateBalance(ctx context.Context, address string) {
	r.refreshBalance(ctx, domain.NormalizeAddress(address))
}

// ResetCooldown pins the local cooldown cache to the full interval after a
// confirmed claim, so eligibility is consistent before the next poll lands.
func (r *Reader) ResetCooldown(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.accounts[domain.NormalizeAddress(address)]
	if !ok {
		return
	}
	st.snapshot.CanClaim = false
	st.snapshot.CooldownRemaining = domain.ClaimInterval
	st.snapshot.LastClaimAt = time.Now().Unix()
}

// CreatorVotes reads a creator wallet's on-chain vote tally in whole tokens.
// Uncached: callers are audit paths that want the ledger's current answer.
func (r *Reader) CreatorVotes(ctx context.Context, wallet string) (uint64, error) {
	data, err := r.contracts.PackGetCreatorVotes(common.HexToAddress(wallet))
	if err != nil {
		return 0, err
	}
	out, err := r.client.CallContract(ctx, evm.CallMsg{To: r.contracts.DAO, Data: data})
	if err != nil {
		return 0, fmt.Errorf("call getCreatorVotes: %w", err)
	}
	tally, err := r.contracts.UnpackGetCreatorVotes(out)
	if err != nil {
		return 0, err
	}
	return evm.WeiToTokens(tally), nil
}

func (r *Reader) loop(interval time.Duration, fn func(ctx context.Context)) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			fn(ctx)
			cancel()
		}
	}
}

func (r *Reader) trackedKeys(onlyCoolingDown bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.accounts))
	for key, st := range r.accounts {
		if onlyCoolingDown && st.snapshot.CanClaim {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (r *Reader) pollBalances(ctx context.Context) {
	for _, key := range r.trackedKeys(false) {
		r.refreshBalance(ctx, key)
	}
}

func (r *Reader) pollEligibility(ctx context.Context) {
	for _, key := range r.trackedKeys(false) {
		r.refreshEligibility(ctx, key)
	}
}

// pollCountdowns refreshes only the cooldown remainder, and only for
// accounts that cannot claim yet.
func (r *Reader) pollCountdowns(ctx context.Context) {
	for _, key := range r.trackedKeys(true) {
		r.refreshEligibility(ctx, key)
	}
}

func (r *Reader) refreshBalance(ctx context.Context, key string) {
	r.mu.RLock()
	st, ok := r.accounts[key]
	r.mu.RUnlock()
	if !ok {
		return
	}

	balance, err := r.fetchBalance(ctx, st.addr)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		st.snapshot.Stale = true
		r.pollError("balance", key, err)
		return
	}
	st.snapshot.Balance = balance
	st.snapshot.ObservedAt = time.Now().Unix()
	st.snapshot.Stale = false
}

func (r *Reader) refreshEligibility(ctx context.Context, key string) {
	r.mu.RLock()
	st, ok := r.accounts[key]
	r.mu.RUnlock()
	if !ok {
		return
	}

	elig, err := r.fetchEligibility(ctx, st.addr)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		st.snapshot.Stale = true
		r.pollError("eligibility", key, err)
		return
	}
	st.snapshot.CanClaim = elig.CanClaim
	st.snapshot.CooldownRemaining = elig.CooldownRemaining
	st.snapshot.ObservedAt = time.Now().Unix()
	st.snapshot.Stale = false
}

func (r *Reader) fetchBalance(ctx context.Context, addr common.Address) (uint64, error) {
	data, err := r.contracts.PackBalanceOf(addr)
	if err != nil {
		return 0, err
	}
	out, err := r.client.CallContract(ctx, evm.CallMsg{To: r.contracts.Token, Data: data})
	if err != nil {
		return 0, fmt.Errorf("call balanceOf: %w", err)
	}
	wei, err := r.contracts.UnpackBalanceOf(out)
	if err != nil {
		return 0, err
	}
	return evm.WeiToTokens(wei), nil
}

func (r *Reader) fetchEligibility(ctx context.Context, addr common.Address) (domain.ClaimEligibility, error) {
	var elig domain.ClaimEligibility

	data, err := r.contracts.PackCanClaim(addr)
	if err != nil {
		return elig, err
	}
	out, err := r.client.CallContract(ctx, evm.CallMsg{To: r.contracts.Token, Data: data})
	if err != nil {
		return elig, fmt.Errorf("call canClaimFromFaucet: %w", err)
	}
	canClaim, err := r.contracts.UnpackCanClaim(out)
	if err != nil {
		return elig, err
	}

	if canClaim {
		return domain.ClaimEligibility{CanClaim: true}, nil
	}

	data, err = r.contracts.PackTimeUntilNextClaim(addr)
	if err != nil {
		return elig, err
	}
	out, err = r.client.CallContract(ctx, evm.CallMsg{To: r.contracts.Token, Data: data})
	if err != nil {
		return elig, fmt.Errorf("call getTimeUntilNextClaim: %w", err)
	}
	remaining, err := r.contracts.UnpackTimeUntilNextClaim(out)
	if err != nil {
		return elig, err
	}

	// A zero remainder with canClaim false is a contract-side race around
	// the boundary; derive consistently in our favor of not claiming.
	if remaining <= 0 {
		remaining = 1
	}
	return domain.ClaimEligibility{CooldownRemaining: remaining}, nil
}

func (r *Reader) pollError(tier, key string, err error) {
	if r.metrics != nil {
		r.metrics.ReaderPollErrors.WithLabelValues(tier).Inc()
	}
	r.logger.Warn("poll failed, serving last-known values",
		zap.String("tier", tier),
		zap.String("account", key),
		zap.Error(err))
}
