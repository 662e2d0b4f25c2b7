package database

import (
	"context"
	"fmt"
)

func (db *PostgresDB) InitSchema(ctx context.Context) error {
	// 1. Cache entries backing the memoized search/crawl/condense calls
	cacheQuery := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, cacheQuery); err != nil {
		return fmt.Errorf("failed to create cache_entries table: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)"); err != nil {
		return fmt.Errorf("failed to create index on cache_entries: %w", err)
	}

	// 2. Per-run logs written by the server's slog handler
	logsQuery := `
		CREATE TABLE IF NOT EXISTS research_logs (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create research_logs table: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_research_logs_run_id ON research_logs(run_id)"); err != nil {
		return fmt.Errorf("failed to create index on research_logs: %w", err)
	}

	return nil
}
