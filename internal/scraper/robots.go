package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/FranksOps/serper/pkg/httpclient"
	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches and caches robots.txt per origin.
type RobotsTxtAuditor struct {
	client *httpclient.Client
	logger *slog.Logger
	mu     sync.RWMutex
	cache  map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance that fetches through client.
func NewRobotsTxtAuditor(client *httpclient.Client, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		client: client,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed determines if the given URL is allowed by the host's robots.txt for the provided User-Agent.
// An unreachable or missing robots.txt allows everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return false, fmt.Errorf("invalid url %q: not absolute", targetURL)
	}

	origin := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, origin, userAgent)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "origin", origin, "err", err)
		return true, nil
	}

	if data == nil {
		return true, nil
	}

	group := data.FindGroup(userAgent)
	return group.Test(u.Path), nil
}

func (r *RobotsTxtAuditor) getOrFetch(ctx context.Context, origin, userAgent string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[origin]
	r.mu.RUnlock()

	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists = r.cache[origin]
	if exists {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		r.cache[origin] = nil
		return nil, fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		r.cache[origin] = nil
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.cache[origin] = nil
		return nil, fmt.Errorf("read error: %w", err)
	}

	parsed, err := robotstxt.FromBytes(body)
	if err != nil {
		r.cache[origin] = nil
		return nil, fmt.Errorf("parse error: %w", err)
	}

	r.cache[origin] = parsed
	return parsed, nil
}
