package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/FranksOps/serper/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed storage.Backend, one attempt per line.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	return &jsonBackend{file: f}, nil
}

func (b *jsonBackend) Save(ctx context.Context, a *storage.Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	// O_APPEND writes ignore the offset, but keep it at the end anyway.
	defer func() { _, _ = b.file.Seek(0, io.SeekEnd) }()

	var matched []*storage.Attempt
	scanner := bufio.NewScanner(b.file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var a storage.Attempt
		if err := json.Unmarshal(line, &a); err != nil {
			return nil, fmt.Errorf("context: %w", err)
		}
		if matches(&a, filter) {
			matched = append(matched, &a)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Attempt > matched[j].Attempt
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*storage.Attempt{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

func matches(a *storage.Attempt, filter storage.Filter) bool {
	if filter.URL != "" && a.URL != filter.URL {
		return false
	}
	if filter.Blocked != nil && a.Blocked != *filter.Blocked {
		return false
	}
	if filter.Since != nil && a.CreatedAt.Before(*filter.Since) {
		return false
	}
	return true
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
