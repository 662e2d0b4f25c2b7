package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// InsertLog stores a single log record for a research run.
func (db *PostgresDB) InsertLog(ctx context.Context, runID uuid.UUID, ts time.Time, level, message string, metadata []byte) error {
	query := `
		INSERT INTO research_logs (run_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := db.Pool.Exec(ctx, query, runID, ts, level, message, metadata); err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

// ListLogs returns the log records of a run in insertion order.
func (db *PostgresDB) ListLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return logs, nil
}
