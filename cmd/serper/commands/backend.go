package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/serper/internal/storage"
	"github.com/FranksOps/serper/internal/storage/jsonbackend"
	"github.com/FranksOps/serper/internal/storage/postgres"
	"github.com/FranksOps/serper/internal/storage/sqlite"
)

// openBackend opens the attempt store named by dsn. An empty dsn yields a
// nil backend.
func openBackend(ctx context.Context, dsn string) (storage.Backend, error) {
	if dsn == "" {
		return nil, nil
	}

	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid attempts dsn %q: expected scheme://target", dsn)
	}

	var (
		backend storage.Backend
		err     error
	)
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		backend, err = sqlite.New(rest)
	case "postgres", "postgresql":
		backend, err = postgres.New(ctx, dsn)
	case "json", "ndjson":
		backend, err = jsonbackend.New(rest)
	default:
		return nil, fmt.Errorf("invalid attempts dsn %q: unsupported scheme %q", dsn, scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("open attempts store: %w", err)
	}
	return backend, nil
}
