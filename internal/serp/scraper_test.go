package serp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type stubFetcher struct {
	pages map[string]string
	fail  map[string]error
	urls  []string
	langs []string
}

func (f *stubFetcher) Fetch(_ context.Context, url, language string) (string, error) {
	f.urls = append(f.urls, url)
	f.langs = append(f.langs, language)
	if err, ok := f.fail[url]; ok {
		return "", err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return resultPage(container("Default", "https://default.example/", "", "")), nil
}

type stubRobots struct {
	allowed bool
	err     error
	calls   int
}

func (r *stubRobots) IsAllowed(context.Context, string, string) (bool, error) {
	r.calls++
	return r.allowed, r.err
}

func newTestScraper(f PageFetcher, cfg Config) *Scraper {
	cfg.Logger = slog.New(slog.DiscardHandler)
	return New(f, cfg)
}

func TestEngine_PageURL(t *testing.T) {
	tests := []struct {
		query string
		uule  string
		page  int
		want  string
	}{
		{"a b", "", 0, "https://www.google.com/search?q=a+b"},
		{"a b", "", 1, "https://www.google.com/search?q=a+b&start=10"},
		{"a b", "", 2, "https://www.google.com/search?q=a+b&start=20"},
		{"café & co", "w+CAIQICIN", 0, "https://www.google.com/search?q=caf%C3%A9+%26+co&uule=w+CAIQICIN"},
		{"x", "w+CAIQICIN", 3, "https://www.google.com/search?q=x&uule=w+CAIQICIN&start=30"},
	}
	for _, tt := range tests {
		if got := Google.PageURL(tt.query, tt.uule, tt.page); got != tt.want {
			t.Errorf("PageURL(%q, %q, %d) = %s, want %s", tt.query, tt.uule, tt.page, got, tt.want)
		}
	}

	withParams := Engine{BaseURL: "https://www.google.com/search?hl=nl"}
	if got := withParams.PageURL("go", "", 0); got != "https://www.google.com/search?hl=nl&q=go" {
		t.Errorf("unexpected url %s", got)
	}
}

func TestScraper_RunQuery(t *testing.T) {
	f := &stubFetcher{}
	s := newTestScraper(f, Config{})

	res, err := s.RunQuery(context.Background(), "golang", QueryOptions{Pages: 3, Language: "en-US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Query != "golang" || res.NrPages != 3 || len(res.Pages) != 3 {
		t.Fatalf("expected 3 pages for golang, got %+v", res)
	}
	want := []string{
		"https://www.google.com/search?q=golang",
		"https://www.google.com/search?q=golang&start=10",
		"https://www.google.com/search?q=golang&start=20",
	}
	if strings.Join(f.urls, " ") != strings.Join(want, " ") {
		t.Errorf("unexpected urls:\n got %v\nwant %v", f.urls, want)
	}
	for _, l := range f.langs {
		if l != "en-US" {
			t.Errorf("expected language en-US, got %q", l)
		}
	}
	if got := len(res.Results()); got != 3 {
		t.Errorf("expected 3 organic results overall, got %d", got)
	}
}

func TestScraper_StopsAtFetchFailure(t *testing.T) {
	f := &stubFetcher{fail: map[string]error{
		"https://www.google.com/search?q=golang&start=10": errors.New("blocked"),
	}}
	s := newTestScraper(f, Config{})

	res, err := s.RunQuery(context.Background(), "golang", QueryOptions{Pages: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NrPages != 1 || len(res.Pages) != 1 {
		t.Errorf("expected the first page only, got %d pages", res.NrPages)
	}
	if len(f.urls) != 2 {
		t.Errorf("expected page 3 never to be requested, got %v", f.urls)
	}
}

func TestScraper_StopsAtParseFailure(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://www.google.com/search?q=golang": "<html><body>consent wall</body></html>",
	}}
	s := newTestScraper(f, Config{})

	res, err := s.RunQuery(context.Background(), "golang", QueryOptions{Pages: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NrPages != 0 || len(res.Pages) != 0 {
		t.Errorf("expected no pages, got %d", res.NrPages)
	}
	if len(f.urls) != 1 {
		t.Errorf("expected a single request, got %v", f.urls)
	}
}

func TestScraper_ZeroPages(t *testing.T) {
	f := &stubFetcher{}
	s := newTestScraper(f, Config{})

	res, err := s.RunQuery(context.Background(), "golang", QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NrPages != 0 || res.Pages == nil || len(res.Pages) != 0 {
		t.Errorf("expected an empty result, got %+v", res)
	}
	if len(f.urls) != 0 {
		t.Errorf("expected no requests, got %v", f.urls)
	}
}

func TestScraper_NegativePages(t *testing.T) {
	s := newTestScraper(&stubFetcher{}, Config{})
	if _, err := s.RunQuery(context.Background(), "golang", QueryOptions{Pages: -1}); err == nil {
		t.Error("expected error for negative page count")
	}
}

func TestScraper_RobotsDisallowed(t *testing.T) {
	f := &stubFetcher{}
	robots := &stubRobots{allowed: false}
	s := newTestScraper(f, Config{Robots: robots, RobotsUserAgent: "serper"})

	res, err := s.RunQuery(context.Background(), "golang", QueryOptions{Pages: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NrPages != 0 || len(f.urls) != 0 {
		t.Errorf("expected no fetches when disallowed, got %d pages and %v", res.NrPages, f.urls)
	}
	if robots.calls != 1 {
		t.Errorf("expected one robots check, got %d", robots.calls)
	}
}

func TestScraper_RobotsErrorAllows(t *testing.T) {
	f := &stubFetcher{}
	s := newTestScraper(f, Config{Robots: &stubRobots{err: errors.New("boom")}})

	res, _ := s.RunQuery(context.Background(), "golang", QueryOptions{Pages: 1})
	if res.NrPages != 1 {
		t.Errorf("expected the query to proceed, got %d pages", res.NrPages)
	}
}

func TestScraper_PositionsRestartPerPage(t *testing.T) {
	f := &stubFetcher{}
	s := newTestScraper(f, Config{})

	res, _ := s.RunQuery(context.Background(), "golang", QueryOptions{Pages: 2})
	for i, p := range res.Pages {
		if p.OrganicResults[0].Position != 1 {
			t.Errorf("page %d: expected position 1, got %d", i, p.OrganicResults[0].Position)
		}
	}
}
