package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/serper/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS fetch_attempts (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	language TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	body_bytes INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	blocked BOOLEAN NOT NULL,
	detection_src TEXT,
	error TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS fetch_attempts_created_at ON fetch_attempts (created_at);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("context: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, a *storage.Attempt) error {
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO fetch_attempts (
		id, url, attempt, language, status_code, body_bytes, duration_ms, blocked, detection_src, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.URL,
		a.Attempt,
		a.Language,
		a.StatusCode,
		a.BodyBytes,
		a.Duration.Milliseconds(),
		a.Blocked,
		a.DetectionSrc,
		a.Error,
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	var where []string
	var args []any

	if filter.URL != "" {
		where = append(where, "url = ?")
		args = append(args, filter.URL)
	}
	if filter.Blocked != nil {
		where = append(where, "blocked = ?")
		args = append(args, *filter.Blocked)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT id, url, attempt, language, status_code, body_bytes, duration_ms, blocked, detection_src, error, created_at FROM fetch_attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, attempt DESC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	defer rows.Close()

	var attempts []*storage.Attempt
	for rows.Next() {
		var a storage.Attempt
		var durationMs int64
		var detectionSrc, errText sql.NullString

		if err := rows.Scan(
			&a.ID, &a.URL, &a.Attempt, &a.Language, &a.StatusCode, &a.BodyBytes,
			&durationMs, &a.Blocked, &detectionSrc, &errText, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("context: %w", err)
		}

		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.DetectionSrc = detectionSrc.String
		a.Error = errText.String
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	return attempts, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
