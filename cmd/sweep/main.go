// Package main runs a single vote total audit sweep against PostgreSQL and
// exits. Intended for cron or manual repair runs.
package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"talentlink-dao/internal/config"
	"talentlink-dao/internal/logging"
	"talentlink-dao/internal/reconcile"
	"talentlink-dao/internal/storage/migrations"
	pgstore "talentlink-dao/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall sweep deadline")
	flag.Parse()

	logger := logging.New(*logLevel)
	defer logger.Sync()

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatal("connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatal("postgres migrations", zap.Error(err))
	}

	creators := pgstore.NewCreatorStore(pool)
	votes := pgstore.NewVoteStore(pool)

	sweeper := reconcile.NewSweeper(creators, votes, reconcile.WithSweeperLogger(logger.Named("sweep")))
	report, err := sweeper.Run(ctx)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}

	logger.Info("sweep complete",
		zap.Int("checked", report.CreatorsChecked),
		zap.Int("repaired", report.DriftRepaired),
		zap.Int("errors", report.Errors))
}
