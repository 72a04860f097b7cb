package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/copystore"
	"github.com/jonathan/content-pipeline/internal/jobstore"
	"github.com/jonathan/content-pipeline/internal/outbox"
)

// openJobStore connects the Redis-backed job state store.
func openJobStore(cfg *config.Config) *jobstore.Store {
	return jobstore.New(jobstore.NewPool(cfg.RedisURL), jobstore.Options{
		JobTTL:             cfg.JobTTL,
		CompletedRetention: cfg.CompletedRetention,
		MonthlyLogKeep:     cfg.MonthlyLogKeep,
		ArchiveLogLines:    cfg.ArchiveLogLines,
	})
}

// openPostgres connects one pool shared by the outbox and the copy store,
// and makes sure both schemas exist.
func openPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *outbox.Store, *copystore.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ob := outbox.New(pool)
	copies := copystore.New(pool)

	if err := ob.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to ensure outbox schema: %w", err)
	}
	if err := copies.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to ensure copy store schema: %w", err)
	}

	return pool, ob, copies, nil
}
