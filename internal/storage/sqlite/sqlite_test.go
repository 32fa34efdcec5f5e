package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/serper/internal/storage"
)

func TestSQLiteBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "attempts.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	pageURL := "https://www.google.com/search?q=golang"

	first := &storage.Attempt{
		ID:           "attempt-1",
		URL:          pageURL,
		Attempt:      1,
		Language:     "nl-NL",
		StatusCode:   200,
		BodyBytes:    812,
		Duration:     150 * time.Millisecond,
		Blocked:      true,
		DetectionSrc: "Google",
		Error:        "blocked by Google",
		CreatedAt:    now.Add(-time.Minute),
	}
	second := &storage.Attempt{
		ID:         "attempt-2",
		URL:        pageURL,
		Attempt:    2,
		Language:   "nl-NL",
		StatusCode: 200,
		BodyBytes:  90210,
		Duration:   320 * time.Millisecond,
		CreatedAt:  now,
	}

	for _, a := range []*storage.Attempt{first, second} {
		if err := b.Save(ctx, a); err != nil {
			t.Fatalf("Failed to save attempt %s: %v", a.ID, err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{URL: pageURL})
	if err != nil {
		t.Fatalf("Failed to query attempts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(all))
	}
	if all[0].ID != "attempt-2" {
		t.Errorf("Expected newest attempt first, got %s", all[0].ID)
	}

	got := all[1]
	if got.Attempt != 1 || got.Language != "nl-NL" || got.StatusCode != 200 || got.BodyBytes != 812 {
		t.Errorf("Unexpected attempt fields: %+v", got)
	}
	if !got.Blocked || got.DetectionSrc != "Google" || got.Error != "blocked by Google" {
		t.Errorf("Expected blocked attempt details to round-trip, got %+v", got)
	}
	if got.Duration.Milliseconds() != first.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", first.Duration, got.Duration)
	}
	if got.CreatedAt.Unix() != first.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", first.CreatedAt, got.CreatedAt)
	}

	blocked := true
	onlyBlocked, err := b.Query(ctx, storage.Filter{Blocked: &blocked})
	if err != nil {
		t.Fatalf("Failed to query blocked attempts: %v", err)
	}
	if len(onlyBlocked) != 1 || onlyBlocked[0].ID != "attempt-1" {
		t.Errorf("Expected only attempt-1 to be blocked, got %d results", len(onlyBlocked))
	}

	since := now.Add(-30 * time.Second)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query with Since: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "attempt-2" {
		t.Errorf("Expected only attempt-2 since %v, got %d results", since, len(recent))
	}

	offset, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query with Offset only: %v", err)
	}
	if len(offset) != 1 || offset[0].ID != "attempt-1" {
		t.Errorf("Expected attempt-1 at offset 1, got %d results", len(offset))
	}

	limited, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query with Limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 result with limit, got %d", len(limited))
	}
}
