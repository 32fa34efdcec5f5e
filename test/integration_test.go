//go:build integration

package test

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/serper/internal/fingerprint"
	"github.com/FranksOps/serper/internal/scraper"
	"github.com/FranksOps/serper/internal/serp"
	"github.com/FranksOps/serper/internal/storage"
	"github.com/FranksOps/serper/internal/storage/sqlite"
	"github.com/FranksOps/serper/pkg/ratelimit"
	"github.com/FranksOps/serper/pkg/useragent"
)

var consentCookie = regexp.MustCompile(`^YES\+[a-z]{3}$`)

// fakeEngine answers like a result page endpoint: the first request for every
// offset gets the "unusual traffic" page, later ones get ten results. Offsets
// listed in broken always answer 503.
type fakeEngine struct {
	mu       sync.Mutex
	seen     map[string]int
	broken   map[string]bool
	consents []string
	langs    []string
}

func (e *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/robots.txt" {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		return
	}

	start := r.URL.Query().Get("start")

	e.mu.Lock()
	e.seen[start]++
	n := e.seen[start]
	if c, err := r.Cookie(scraper.ConsentCookieName); err == nil {
		e.consents = append(e.consents, c.Value)
	}
	e.langs = append(e.langs, r.Header.Get("Accept-Language"))
	e.mu.Unlock()

	if e.broken[start] {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if n == 1 {
		fmt.Fprint(w, `<html><body><div id="infoDiv">Our systems have detected unusual traffic from your computer network.</div></body></html>`)
		return
	}

	offset := 0
	fmt.Sscanf(start, "%d", &offset)

	var b strings.Builder
	b.WriteString(`<html><body><div id="search"><div id="rso">`)
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, `<div class="g"><a href="/url?q=https://site%d.example/&amp;sa=U"><h3>Result %d</h3></a><cite>site%d.example</cite><div class="VwiC3b">Snippet %d</div></div>`,
			offset+i, offset+i, offset+i, offset+i)
	}
	b.WriteString(`</div></div></body></html>`)
	fmt.Fprint(w, b.String())
}

func TestIntegration_QueryThroughFingerprintedTLS(t *testing.T) {
	engine := &fakeEngine{
		seen:   make(map[string]int),
		broken: map[string]bool{"20": true},
	}
	ts := httptest.NewTLSServer(engine)
	defer ts.Close()

	roots := x509.NewCertPool()
	roots.AddCert(ts.Certificate())

	backend, err := sqlite.New(filepath.Join(t.TempDir(), "attempts.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer backend.Close()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileChrome,
		RootCAs:     roots,
		UAPool:      useragent.NewPool(nil),
		Limiter:     ratelimit.NewLimiter(200, 0.1),
		ConsentURL:  ts.URL,
		Backend:     backend,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	engineCfg := serp.Google
	engineCfg.BaseURL = ts.URL + "/search"
	s := serp.New(fetcher, serp.Config{
		Engine:          engineCfg,
		Robots:          scraper.NewRobotsTxtAuditor(fetcher.Client(), logger),
		RobotsUserAgent: fetcher.UserAgent(),
		Logger:          logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := s.RunQuery(ctx, "integration test", serp.QueryOptions{Pages: 4, Language: "en-GB"})
	if err != nil {
		t.Fatalf("run query: %v", err)
	}

	// Page 3 never recovers, so the query stops there and page 4 is never asked for.
	if res.NrPages != 2 {
		t.Fatalf("expected 2 pages, got %d", res.NrPages)
	}
	if _, asked := engine.seen["30"]; asked {
		t.Error("expected the page after the failure not to be requested")
	}
	if engine.seen[""] != 2 || engine.seen["10"] != 2 || engine.seen["20"] != scraper.DefaultMaxAttempts {
		t.Errorf("unexpected request counts %v", engine.seen)
	}

	second := res.Pages[1].OrganicResults
	if len(second) != 10 || second[0].Position != 1 || second[0].Link != "https://site11.example/" {
		t.Errorf("unexpected second page %+v", second)
	}

	if len(engine.consents) != len(engine.langs) {
		t.Errorf("expected a consent cookie on every request, got %d of %d", len(engine.consents), len(engine.langs))
	}
	for _, c := range engine.consents {
		if !consentCookie.MatchString(c) {
			t.Errorf("unexpected consent cookie %q", c)
		}
	}
	for _, l := range engine.langs {
		if l != "en-GB" {
			t.Errorf("expected Accept-Language en-GB, got %q", l)
		}
	}

	all, err := backend.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("query attempts: %v", err)
	}
	if len(all) != 2+2+scraper.DefaultMaxAttempts {
		t.Errorf("expected every attempt audited, got %d", len(all))
	}
	blocked := true
	hits, _ := backend.Query(ctx, storage.Filter{Blocked: &blocked})
	if len(hits) != 2 {
		t.Errorf("expected 2 blocked attempts, got %d", len(hits))
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
