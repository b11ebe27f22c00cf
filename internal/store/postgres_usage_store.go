package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dunamismax/resizeflow/internal/domain"
	_ "github.com/lib/pq"
)

const usageSchemaSQL = `
CREATE TABLE IF NOT EXISTS usage_logs (
	request_id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	outputs INTEGER NOT NULL,
	archive BOOLEAN NOT NULL DEFAULT FALSE,
	pixels_produced BIGINT NOT NULL,
	bytes_in BIGINT NOT NULL,
	bytes_out BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS usage_logs_client_created_idx ON usage_logs (client_id, created_at DESC);
`

type PostgresUsageStore struct {
	db *sql.DB
}

func NewPostgresUsageStore(ctx context.Context, dsn string) (*PostgresUsageStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresUsageStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresUsageStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, usageSchemaSQL); err != nil {
		return fmt.Errorf("ensure usage_logs schema: %w", err)
	}
	return nil
}

func (s *PostgresUsageStore) Close() error {
	return s.db.Close()
}

func (s *PostgresUsageStore) Record(ctx context.Context, entry domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (request_id, client_id, outputs, archive, pixels_produced, bytes_in, bytes_out, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (request_id) DO NOTHING`,
		entry.RequestID,
		entry.ClientID,
		entry.Outputs,
		entry.Archive,
		entry.PixelsProduced,
		entry.BytesIn,
		entry.BytesOut,
		entry.ComputeTimeMS,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresUsageStore) Recent(ctx context.Context, limit int) ([]domain.UsageLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT request_id, client_id, outputs, archive, pixels_produced, bytes_in, bytes_out, compute_time_ms, created_at
		 FROM usage_logs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage logs: %w", err)
	}
	defer rows.Close()

	var out []domain.UsageLog
	for rows.Next() {
		var entry domain.UsageLog
		if err := rows.Scan(
			&entry.RequestID,
			&entry.ClientID,
			&entry.Outputs,
			&entry.Archive,
			&entry.PixelsProduced,
			&entry.BytesIn,
			&entry.BytesOut,
			&entry.ComputeTimeMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage logs: %w", err)
	}
	return out, nil
}
