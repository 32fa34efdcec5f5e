package scraper

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/serper/internal/bypass"
	"github.com/FranksOps/serper/internal/fingerprint"
	"github.com/FranksOps/serper/internal/metrics"
	"github.com/FranksOps/serper/internal/storage"
	"github.com/FranksOps/serper/pkg/httpclient"
	"github.com/FranksOps/serper/pkg/ratelimit"
	"github.com/FranksOps/serper/pkg/useragent"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/net/html/charset"
)

const (
	// DefaultLanguage is sent as Accept-Language when no language is given.
	DefaultLanguage = "nl-NL"
	// DefaultMaxAttempts is the total number of attempts per Fetch.
	DefaultMaxAttempts = 5
	// DefaultConsentURL is the origin whose domain receives the CONSENT cookie.
	DefaultConsentURL = "https://www.google.com/"

	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	// MaxAttempts bounds the attempts of one Fetch, the first one included.
	MaxAttempts int
	// RetryWait is the constant pause between attempts. Zero retries immediately.
	RetryWait time.Duration
	// Language is the Accept-Language used when Fetch gets an empty language.
	Language string
	// Proxy is a single outbound proxy URL. A missing scheme means http.
	Proxy       string
	UAPool      *useragent.Pool
	Fingerprint fingerprint.Profile
	RootCAs     *x509.CertPool
	Limiter     *ratelimit.Limiter
	ConsentURL  string
	// BlockPhrases overrides bypass.DefaultBlockPhrases.
	BlockPhrases []string
	// Backend receives one storage.Attempt per attempt when set.
	Backend storage.Backend
	Logger  *slog.Logger
}

// Fetcher downloads result pages, resetting the session before every attempt
// and retrying failed or blocked attempts. A Fetcher serves one query at a
// time.
type Fetcher struct {
	config    FetchConfig
	client    *httpclient.Client
	session   *Session
	detectors []bypass.Detector
	logger    *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.ConsentURL == "" {
		cfg.ConsentURL = DefaultConsentURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	proxyURL, err := ParseProxy(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:   proxyURL,
		RootCAs: cfg.RootCAs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: true,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	session, err := NewSession(client, cfg.ConsentURL)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		config:    cfg,
		client:    client,
		session:   session,
		detectors: bypass.DefaultDetectors(cfg.BlockPhrases),
		logger:    cfg.Logger,
	}, nil
}

// ParseProxy parses a single proxy URL. The empty string means no proxy.
func ParseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: missing host", raw)
	}
	return u, nil
}

// Session returns the cookie session reset before every attempt.
func (f *Fetcher) Session() *Session { return f.session }

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *httpclient.Client { return f.client }

// UserAgent returns the first configured User-Agent, used for robots.txt groups.
func (f *Fetcher) UserAgent() string { return f.config.UAPool.All()[0] }

// Fetch returns the body of targetURL. Each attempt resets the session, sends
// the GET and checks the body for a block page; the whole cycle is retried
// until it succeeds or MaxAttempts is spent, in which case the last attempt's
// error is returned as is. Context cancellation ends the loop at once with a
// *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, targetURL, language string) (string, error) {
	if language == "" {
		language = f.config.Language
	}

	n := 0
	op := func() (string, error) {
		n++
		body, err := f.attempt(ctx, targetURL, language, n)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		return body, err
	}
	notify := func(err error, wait time.Duration) {
		f.logger.Debug("fetch attempt failed, retrying",
			"url", targetURL,
			"attempt", n,
			"max_attempts", f.config.MaxAttempts,
			"wait", wait,
			"err", err,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(f.retryPolicy(), uint64(f.config.MaxAttempts-1)),
		ctx,
	)
	body, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		var te *TransportError
		if ctx.Err() != nil && !errors.As(err, &te) {
			err = &TransportError{URL: targetURL, Err: err}
		}
		return "", err
	}
	return body, nil
}

func (f *Fetcher) retryPolicy() backoff.BackOff {
	if f.config.RetryWait > 0 {
		return backoff.NewConstantBackOff(f.config.RetryWait)
	}
	return &backoff.ZeroBackOff{}
}

// attempt runs one reset+GET+detect cycle and records its outcome.
func (f *Fetcher) attempt(ctx context.Context, targetURL, language string, n int) (string, error) {
	start := time.Now()
	rec := &storage.Attempt{
		ID:        uuid.New().String(),
		URL:       targetURL,
		Attempt:   n,
		Language:  language,
		CreatedAt: start.UTC(),
	}

	body, err := f.do(ctx, targetURL, language, rec)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Error = err.Error()
	}
	f.record(ctx, rec)
	return body, err
}

func (f *Fetcher) do(ctx context.Context, targetURL, language string, rec *storage.Attempt) (string, error) {
	if err := f.session.Reset(); err != nil {
		return "", &TransportError{URL: targetURL, Err: fmt.Errorf("reset session: %w", err)}
	}
	if err := f.config.Limiter.Wait(ctx); err != nil {
		return "", &TransportError{URL: targetURL, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", &TransportError{URL: targetURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", language)

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return "", &TransportError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", &TransportError{URL: targetURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	body := string(data)

	rec.StatusCode = resp.StatusCode
	rec.BodyBytes = len(data)

	detected, source := bypass.Analyze(&bypass.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, f.detectors)
	rec.Blocked = detected
	rec.DetectionSrc = source

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: targetURL, StatusCode: resp.StatusCode, DetectionSrc: source}
	}
	if detected {
		return "", &BlockedError{URL: targetURL, Source: source}
	}
	return body, nil
}

// record publishes an attempt to metrics and the audit backend. Audit
// failures are logged and never fail the fetch.
func (f *Fetcher) record(ctx context.Context, rec *storage.Attempt) {
	domain := ""
	if u, err := url.Parse(rec.URL); err == nil {
		domain = u.Hostname()
	}
	metrics.RecordAttempt(domain, rec)

	if f.config.Backend == nil {
		return
	}
	// The attempt may have been cut short by ctx; the audit row is still wanted.
	if err := f.config.Backend.Save(context.WithoutCancel(ctx), rec); err != nil {
		f.logger.Warn("failed to save fetch attempt", "url", rec.URL, "attempt", rec.Attempt, "err", err)
	}
}
