package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/serper/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS fetch_attempts (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	language TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	body_bytes INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	blocked BOOLEAN NOT NULL,
	detection_src TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS fetch_attempts_created_at ON fetch_attempts (created_at DESC);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("context: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("context: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, a *storage.Attempt) error {
	_, err := b.pool.Exec(ctx, `
	INSERT INTO fetch_attempts (
		id, url, attempt, language, status_code, body_bytes, duration_ms, blocked, detection_src, error, created_at
	) VALUES (@id, @url, @attempt, @language, @status_code, @body_bytes, @duration_ms, @blocked, @detection_src, @error, @created_at)`,
		pgx.NamedArgs{
			"id":            a.ID,
			"url":           a.URL,
			"attempt":       a.Attempt,
			"language":      a.Language,
			"status_code":   a.StatusCode,
			"body_bytes":    a.BodyBytes,
			"duration_ms":   a.Duration.Milliseconds(),
			"blocked":       a.Blocked,
			"detection_src": a.DetectionSrc,
			"error":         a.Error,
			"created_at":    a.CreatedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	var where []string
	args := pgx.NamedArgs{}

	if filter.URL != "" {
		where = append(where, "url = @url")
		args["url"] = filter.URL
	}
	if filter.Blocked != nil {
		where = append(where, "blocked = @blocked")
		args["blocked"] = *filter.Blocked
	}
	if filter.Since != nil {
		where = append(where, "created_at >= @since")
		args["since"] = *filter.Since
	}

	query := `SELECT id, url, attempt, language, status_code, body_bytes, duration_ms, blocked, detection_src, error, created_at FROM fetch_attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, attempt DESC`

	if filter.Limit > 0 {
		query += ` LIMIT @limit`
		args["limit"] = filter.Limit
	}
	if filter.Offset > 0 {
		query += ` OFFSET @offset`
		args["offset"] = filter.Offset
	}

	rows, err := b.pool.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.Attempt, error) {
		var a storage.Attempt
		var durationMs int64
		err := row.Scan(
			&a.ID, &a.URL, &a.Attempt, &a.Language, &a.StatusCode, &a.BodyBytes,
			&durationMs, &a.Blocked, &a.DetectionSrc, &a.Error, &a.CreatedAt,
		)
		a.Duration = time.Duration(durationMs) * time.Millisecond
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	return attempts, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
