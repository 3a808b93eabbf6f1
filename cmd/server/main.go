// Package main runs the reconciliation service: the chain reader and writer,
// the reconciliation engine with its periodic sweep, and the JSON HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"talentlink-dao/internal/api"
	"talentlink-dao/internal/chain"
	"talentlink-dao/internal/config"
	"talentlink-dao/internal/enrich"
	"talentlink-dao/internal/evm"
	"talentlink-dao/internal/logging"
	"talentlink-dao/internal/observability"
	"talentlink-dao/internal/reconcile"
	"talentlink-dao/internal/storage"
	chstore "talentlink-dao/internal/storage/clickhouse"
	"talentlink-dao/internal/storage/memory"
	"talentlink-dao/internal/storage/migrations"
	pgstore "talentlink-dao/internal/storage/postgres"
)

// stores bundles the storage implementations behind their interfaces.
type stores struct {
	creators      storage.CreatorStore
	votes         storage.VoteStore
	opportunities storage.OpportunityStore
	events        storage.VoteEventStore
}

func main() {
	cfg := config.Load()

	// Flags override env defaults
	httpPort := flag.String("http-port", cfg.HTTPPort, "HTTP listen port")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rpcURL := flag.String("rpc-url", cfg.RPCURL, "Ledger JSON-RPC HTTP endpoint")
	wsURL := flag.String("ws-url", cfg.WSURL, "Ledger WebSocket endpoint for newHeads (optional)")
	tokenAddr := flag.String("token-address", cfg.TokenAddress, "Reputation token contract address")
	daoAddr := flag.String("dao-address", cfg.DAOAddress, "Voting contract address")
	nftAddr := flag.String("nft-address", cfg.NFTAddress, "Profile NFT contract address")
	signerKey := flag.String("signer-key", cfg.SignerKeyHex, "Hex private key for the service signer (optional, read-only without it)")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (in-memory stores when empty)")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string (optional)")
	sweepInterval := flag.Duration("sweep-interval", 10*time.Minute, "Vote total audit sweep interval")
	flag.Parse()

	logger := logging.New(*logLevel)
	defer logger.Sync()

	if !common.IsHexAddress(*tokenAddr) {
		logger.Fatal("valid --token-address is required")
	}
	if !common.IsHexAddress(*daoAddr) {
		logger.Fatal("valid --dao-address is required")
	}
	if !common.IsHexAddress(*nftAddr) {
		logger.Fatal("valid --nft-address is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics("")

	st, cleanup, err := buildStores(ctx, *postgresDSN, *clickhouseDSN, logger)
	if err != nil {
		logger.Fatal("store setup failed", zap.Error(err))
	}
	defer cleanup()

	contracts, err := evm.NewContracts(common.HexToAddress(*tokenAddr), common.HexToAddress(*daoAddr), common.HexToAddress(*nftAddr))
	if err != nil {
		logger.Fatal("contract bindings failed", zap.Error(err))
	}
	client := evm.NewHTTPClient(*rpcURL)

	var signer chain.Signer
	if *signerKey != "" {
		localSigner, err := chain.NewLocalSigner(*signerKey)
		if err != nil {
			logger.Fatal("signer setup failed", zap.Error(err))
		}
		signer = localSigner
	} else {
		logger.Warn("no signer configured, running read-only")
	}

	writerOpts := []chain.WriterOption{
		chain.WithWriterLogger(logger.Named("writer")),
		chain.WithWriterMetrics(metrics),
		chain.WithReceiptPollInterval(time.Duration(cfg.ReceiptInterval) * time.Second),
	}
	if *wsURL != "" {
		heads, err := evm.NewWSHeadsClient(ctx, *wsURL, nil)
		if err != nil {
			logger.Warn("newHeads subscription unavailable, falling back to receipt polling", zap.Error(err))
		} else {
			defer heads.Close()
			writerOpts = append(writerOpts, chain.WithHeads(heads))
		}
	}

	writer, err := chain.NewWriter(ctx, client, contracts, signer, writerOpts...)
	if err != nil {
		logger.Fatal("writer setup failed", zap.Error(err))
	}
	defer writer.Close()

	reader := chain.NewReader(client, contracts,
		chain.WithReaderLogger(logger.Named("reader")),
		chain.WithReaderMetrics(metrics))
	reader.Start()
	defer reader.Close()

	// The service signer's own account is always tracked.
	if addr, ok := writer.SenderAddress(); ok {
		reader.Track(ctx, common.HexToAddress(addr))
	}

	engine := reconcile.NewEngine(writer, reader, st.creators, st.votes,
		reconcile.WithVoteEvents(st.events),
		reconcile.WithEngineLogger(logger.Named("engine")),
		reconcile.WithEngineMetrics(metrics))

	sweeper := reconcile.NewSweeper(st.creators, st.votes,
		reconcile.WithSweeperLogger(logger.Named("sweep")),
		reconcile.WithSweeperMetrics(metrics),
		reconcile.WithChainTotals(reader))
	go runSweepLoop(ctx, sweeper, *sweepInterval, logger)

	enricher := enrich.NewClient(cfg.EnrichBaseURL, cfg.EnrichAPIKey, logger.Named("enrich"),
		enrich.WithModel(cfg.EnrichModel),
		enrich.WithMetrics(metrics))

	server := api.NewServer(engine, reader, st.creators, st.votes, st.opportunities, enricher, logger.Named("api"))
	httpServer := &http.Server{
		Addr:    ":" + *httpPort,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStores wires postgres+clickhouse stores, or in-memory fallbacks for
// local development when no DSN is configured.
func buildStores(ctx context.Context, postgresDSN, clickhouseDSN string, logger *zap.Logger) (*stores, func(), error) {
	if postgresDSN == "" {
		logger.Warn("no postgres dsn, using in-memory stores")
		votes := memory.NewVoteStore()
		return &stores{
			creators:      memory.NewCreatorStore(votes),
			votes:         votes,
			opportunities: memory.NewOpportunityStore(),
			events:        memory.NewVoteEventStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	st := &stores{
		creators:      pgstore.NewCreatorStore(pool),
		votes:         pgstore.NewVoteStore(pool),
		opportunities: pgstore.NewOpportunityStore(pool),
	}
	cleanup := func() { pool.Close() }

	if clickhouseDSN == "" {
		logger.Info("no clickhouse dsn, analytics stream disabled")
		return st, cleanup, nil
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	st.events = chstore.NewVoteEventStore(chConn)
	return st, func() {
		chConn.Close()
		pool.Close()
	}, nil
}

// runSweepLoop audits cached vote totals on a fixed cadence.
func runSweepLoop(ctx context.Context, sweeper *reconcile.Sweeper, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Run(ctx); err != nil {
				logger.Warn("sweep run failed", zap.Error(err))
			}
		}
	}
}
