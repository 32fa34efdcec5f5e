// Package storage defines the audit log of fetch attempts. Only the outcome of
// each attempt is kept; response bodies and parsed results are never stored.
package storage

import (
	"context"
	"time"
)

// Attempt records a single reset+GET+detect cycle against a result page.
type Attempt struct {
	ID           string        `json:"id"`
	URL          string        `json:"url"`
	Attempt      int           `json:"attempt"` // 1-based within one fetch
	Language     string        `json:"language"`
	StatusCode   int           `json:"status_code"`
	BodyBytes    int           `json:"body_bytes"`
	Duration     time.Duration `json:"duration"`
	Blocked      bool          `json:"blocked"`
	DetectionSrc string        `json:"detection_src,omitempty"` // e.g. "Google", "GoogleSorry", "Cloudflare"
	Error        string        `json:"error,omitempty"`         // empty if the attempt returned a usable page
	CreatedAt    time.Time     `json:"created_at"`
}

// Succeeded reports whether the attempt produced a page.
func (a *Attempt) Succeeded() bool {
	return a.Error == ""
}

// Filter allows querying for specific attempts.
type Filter struct {
	URL     string
	Blocked *bool
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend defines the interface for storing and querying fetch attempts.
// Query returns newest first.
type Backend interface {
	Save(ctx context.Context, attempt *Attempt) error
	Query(ctx context.Context, filter Filter) ([]*Attempt, error)
	Close() error
}
