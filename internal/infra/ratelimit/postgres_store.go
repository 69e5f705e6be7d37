package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reconflow/reconflow/internal/infra/storage"
)

// PostgresStore is a CounterStore backed by a shared postgres table, giving all
// orchestrator instances a common view of window counts. The upsert makes the
// increment atomic at the storage layer.
type PostgresStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewPostgresStore creates a postgres-backed counter store.
func NewPostgresStore(pool *pgxpool.Pool, tracer trace.Tracer) *PostgresStore {
	return &PostgresStore{db: pool, tracer: tracer}
}

// Incr atomically increments the counter row for key and returns the
// post-increment value. Expired rows are reset in place rather than deleted so
// a window rollover costs one statement.
func (s *PostgresStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("window_key", key)}

	var count int64
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.rate_limit_incr", attrs, func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, `
			INSERT INTO rate_limit_windows (window_key, count, expires_at)
			VALUES ($1, 1, now() + $2)
			ON CONFLICT (window_key) DO UPDATE SET
				count      = CASE WHEN rate_limit_windows.expires_at < now() THEN 1 ELSE rate_limit_windows.count + 1 END,
				expires_at = CASE WHEN rate_limit_windows.expires_at < now() THEN now() + $2 ELSE rate_limit_windows.expires_at END
			RETURNING count`,
			key, ttl,
		)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("failed to increment rate limit window: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
