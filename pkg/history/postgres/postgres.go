// Package postgres provides a PostgreSQL implementation of history.Store
// using pgx/v5 connection pooling.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/history"
)

// Store is a PostgreSQL-backed history.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ history.Store = (*Store)(nil)

// New connects to PostgreSQL. If MigrateOnStart is true, schema migrations
// are applied before returning.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Record inserts one execution record.
func (s *Store) Record(ctx context.Context, rec api.ExecutionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (code, language, stdout, stderr, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.Code, rec.Language, rec.Stdout, rec.Stderr, rec.Success, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]api.ExecutionRecord, error) {
	query := `
		SELECT code, language, stdout, stderr, success, created_at
		FROM executions
		ORDER BY created_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.ExecutionRecord, error) {
		var r api.ExecutionRecord
		err := row.Scan(&r.Code, &r.Language, &r.Stdout, &r.Stderr, &r.Success, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning executions: %w", err)
	}
	if out == nil {
		out = []api.ExecutionRecord{}
	}
	return out, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
