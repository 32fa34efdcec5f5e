package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/serper/internal/storage"
	"github.com/google/uuid"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if SERPER_TEST_PG_DSN is set
	dsn := os.Getenv("SERPER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: SERPER_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	// Unique URL so repeated runs against the same database stay isolated.
	pageURL := "https://www.google.com/search?q=" + uuid.NewString()

	a := &storage.Attempt{
		ID:           uuid.NewString(),
		URL:          pageURL,
		Attempt:      3,
		Language:     "en-US",
		StatusCode:   429,
		BodyBytes:    2048,
		Duration:     75 * time.Millisecond,
		Blocked:      true,
		DetectionSrc: "GoogleSorry",
		Error:        "unexpected status 429",
		CreatedAt:    now,
	}

	if err := b.Save(ctx, a); err != nil {
		t.Fatalf("Failed to save attempt: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{URL: pageURL})
	if err != nil {
		t.Fatalf("Failed to query attempts: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(results))
	}

	got := results[0]
	if got.ID != a.ID || got.Attempt != 3 || got.StatusCode != 429 || got.BodyBytes != 2048 {
		t.Errorf("Unexpected attempt fields: %+v", got)
	}
	if !got.Blocked || got.DetectionSrc != "GoogleSorry" || got.Error != a.Error {
		t.Errorf("Expected detection details to round-trip, got %+v", got)
	}
	if got.Duration.Milliseconds() != a.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", a.Duration, got.Duration)
	}
	// Postgres timestamps only keep microseconds
	if got.CreatedAt.Unix() != a.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", a.CreatedAt, got.CreatedAt)
	}

	past := now.Add(-1 * time.Hour)
	blocked := true
	filtered, err := b.Query(ctx, storage.Filter{URL: pageURL, Since: &past, Blocked: &blocked, Limit: 5})
	if err != nil {
		t.Fatalf("Failed to query with filters: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(filtered))
	}
}
