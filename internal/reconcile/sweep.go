package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"talentlink-dao/internal/observability"
	"talentlink-dao/internal/storage"
)

// ChainTotals reads a creator wallet's on-chain vote tally. Satisfied by
// *chain.Reader.
type ChainTotals interface {
	CreatorVotes(ctx context.Context, wallet string) (uint64, error)
}

// Sweeper audits cached vote totals against the append-only vote log and
// rebuilds any that drifted. Drift appears when a crash lands between the
// audit row write and the aggregate increment. With a ChainTotals source
// attached it also cross-checks the audit log against the ledger's own
// tally, which catches votes confirmed on chain but never reconciled.
type Sweeper struct {
	creators storage.CreatorStore
	votes    storage.VoteStore
	chain    ChainTotals // nil disables the on-chain cross-check
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// SweeperOption configures Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger.
func WithSweeperLogger(logger *zap.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithSweeperMetrics sets the metrics sink.
func WithSweeperMetrics(m *observability.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithChainTotals attaches the on-chain tally cross-check.
func WithChainTotals(chain ChainTotals) SweeperOption {
	return func(s *Sweeper) {
		s.chain = chain
	}
}

// NewSweeper creates a Sweeper.
func NewSweeper(creators storage.CreatorStore, votes storage.VoteStore, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		creators: creators,
		votes:    votes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	CreatorsChecked int
	DriftRepaired   int
	ChainMismatches int // audit log sum != on-chain tally; logged, not repairable locally
	Errors          int
}

// Run checks every creator and rebuilds drifted totals. Per-creator errors
// are counted and logged; the sweep keeps going so one bad row cannot block
// repair of the rest.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	creators, err := s.creators.List(ctx)
	if err != nil {
		s.recordRun("error")
		return nil, fmt.Errorf("list creators: %w", err)
	}

	report := &SweepReport{}
	for _, c := range creators {
		report.CreatorsChecked++

		sum, err := s.votes.SumByCreator(ctx, c.ID)
		if err != nil {
			report.Errors++
			s.logger.Warn("sweep: audit log sum failed",
				zap.String("creator", c.ID), zap.Error(err))
			continue
		}

		s.crossCheckChain(ctx, c.ID, c.WalletAddress, sum, report)

		if sum == c.TotalVotes {
			continue
		}

		rebuilt, err := s.creators.RecomputeTotal(ctx, c.ID)
		if err != nil {
			report.Errors++
			s.logger.Warn("sweep: total rebuild failed",
				zap.String("creator", c.ID), zap.Error(err))
			continue
		}

		report.DriftRepaired++
		if s.metrics != nil {
			s.metrics.SweepDriftRepaired.Inc()
		}
		s.logger.Info("sweep: rebuilt drifted total",
			zap.String("creator", c.ID),
			zap.Uint64("cached", c.TotalVotes),
			zap.Uint64("rebuilt", rebuilt))
	}

	if report.Errors > 0 {
		s.recordRun("partial")
	} else {
		s.recordRun("ok")
	}
	s.logger.Info("sweep complete",
		zap.Int("checked", report.CreatorsChecked),
		zap.Int("repaired", report.DriftRepaired),
		zap.Int("chain_mismatches", report.ChainMismatches),
		zap.Int("errors", report.Errors))

	return report, nil
}

// crossCheckChain compares the audit log sum to the ledger's own tally. A
// mismatch means a vote confirmed on chain without ever being reconciled;
// the local log cannot rebuild what it never recorded, so this only reports.
func (s *Sweeper) crossCheckChain(ctx context.Context, creatorID, wallet string, auditSum uint64, report *SweepReport) {
	if s.chain == nil {
		return
	}

	onChain, err := s.chain.CreatorVotes(ctx, wallet)
	if err != nil {
		s.logger.Warn("sweep: on-chain tally read failed",
			zap.String("creator", creatorID), zap.Error(err))
		return
	}
	if onChain == auditSum {
		return
	}

	report.ChainMismatches++
	if s.metrics != nil {
		s.metrics.SweepChainMismatches.Inc()
	}
	s.logger.Error("sweep: audit log diverged from on-chain tally",
		zap.String("creator", creatorID),
		zap.Uint64("audit_log", auditSum),
		zap.Uint64("on_chain", onChain))
}

func (s *Sweeper) recordRun(result string) {
	if s.metrics != nil {
		s.metrics.SweepRuns.WithLabelValues(result).Inc()
	}
}
