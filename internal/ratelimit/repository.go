package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteRepository persists per-client limit overrides in the
// rate_limit_configs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed limit repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveLimit upserts the limit for a client.
func (r *SQLiteRepository) SaveLimit(ctx context.Context, clientID string, limit Limit) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rate_limit_configs (client_id, max_requests, window_seconds, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET
		   max_requests = excluded.max_requests,
		   window_seconds = excluded.window_seconds,
		   updated_at = excluded.updated_at`,
		clientID, limit.MaxRequests, limit.WindowSeconds, now,
	)
	if err != nil {
		return fmt.Errorf("saving rate limit: %w", err)
	}
	return nil
}

// LoadLimits returns all persisted per-client limits.
func (r *SQLiteRepository) LoadLimits(ctx context.Context) (map[string]Limit, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT client_id, max_requests, window_seconds FROM rate_limit_configs")
	if err != nil {
		return nil, fmt.Errorf("loading rate limits: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	limits := make(map[string]Limit)
	for rows.Next() {
		var clientID string
		var limit Limit
		if err := rows.Scan(&clientID, &limit.MaxRequests, &limit.WindowSeconds); err != nil {
			return nil, fmt.Errorf("scanning rate limit: %w", err)
		}
		limits[clientID] = limit
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rate limits: %w", err)
	}
	return limits, nil
}
