package serp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/FranksOps/serper/internal/metrics"
)

// ResultsPerPage is the offset step between consecutive result pages.
const ResultsPerPage = 10

// PageFetcher downloads one result page. *scraper.Fetcher implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, url, language string) (string, error)
}

// RobotsChecker reports whether a URL may be fetched. *scraper.RobotsTxtAuditor
// implements it.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, url, userAgent string) (bool, error)
}

// Provider runs multi-page queries against a search engine.
type Provider interface {
	RunQuery(ctx context.Context, query string, opts QueryOptions) (*SEResult, error)
}

// QueryOptions tune a single RunQuery call.
type QueryOptions struct {
	// Pages is the number of result pages to request.
	Pages int
	// UULE is an opaque location token appended to the URL without encoding.
	UULE string
	// Language is the Accept-Language; empty uses the fetcher's default.
	Language string
}

// Config configures a Scraper.
type Config struct {
	// Engine defaults to Google.
	Engine Engine
	// Robots, when set, is consulted once before the first page.
	Robots          RobotsChecker
	RobotsUserAgent string
	Logger          *slog.Logger
}

// Scraper drives the fetch and parse of consecutive result pages. Pages are
// fetched one at a time; a Scraper must not run queries concurrently when its
// fetcher shares a cookie session.
type Scraper struct {
	fetcher   PageFetcher
	extractor *Extractor
	engine    Engine
	robots    RobotsChecker
	robotsUA  string
	logger    *slog.Logger
}

// New creates a Scraper fetching pages through fetcher.
func New(fetcher PageFetcher, cfg Config) *Scraper {
	if cfg.Engine.BaseURL == "" {
		cfg.Engine = Google
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scraper{
		fetcher:   fetcher,
		extractor: NewExtractor(cfg.Engine.Selectors, cfg.Logger),
		engine:    cfg.Engine,
		robots:    cfg.Robots,
		robotsUA:  cfg.RobotsUserAgent,
		logger:    cfg.Logger,
	}
}

// PageURL builds the URL of the zero-based page for query. The start offset
// is only present from the second page on.
func (e Engine) PageURL(query, uule string, page int) string {
	var b strings.Builder
	b.WriteString(e.BaseURL)
	if strings.Contains(e.BaseURL, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	b.WriteString("q=")
	b.WriteString(url.QueryEscape(query))
	if uule != "" {
		b.WriteString("&uule=")
		b.WriteString(uule)
	}
	if page > 0 {
		b.WriteString("&start=")
		b.WriteString(strconv.Itoa(page * ResultsPerPage))
	}
	return b.String()
}

// RunQuery fetches and parses up to opts.Pages result pages in order. The
// first fetch or parse failure is logged and ends the query; the pages
// collected so far are returned. The error is reserved for invalid options.
func (s *Scraper) RunQuery(ctx context.Context, query string, opts QueryOptions) (*SEResult, error) {
	if opts.Pages < 0 {
		return nil, fmt.Errorf("invalid page count: %d", opts.Pages)
	}

	result := &SEResult{Query: query, Pages: []SERP{}}
	if opts.Pages == 0 {
		return result, nil
	}

	if s.robots != nil {
		first := s.engine.PageURL(query, opts.UULE, 0)
		allowed, err := s.robots.IsAllowed(ctx, first, s.robotsUA)
		if err != nil {
			s.logger.Warn("robots.txt check failed", "url", first, "err", err)
		} else if !allowed {
			s.logger.Warn("query disallowed by robots.txt", "url", first)
			metrics.RecordPage(metrics.PageDisallowed, 0)
			return result, nil
		}
	}

	for i := 0; i < opts.Pages; i++ {
		pageURL := s.engine.PageURL(query, opts.UULE, i)

		html, err := s.fetcher.Fetch(ctx, pageURL, opts.Language)
		if err != nil {
			s.logger.Warn("error getting page", "url", pageURL, "err", err)
			metrics.RecordPage(metrics.PageFetchFailed, 0)
			break
		}

		page, err := s.extractor.Parse(html, pageURL)
		if err != nil {
			s.logger.Warn("error parsing response", "url", pageURL, "err", err)
			metrics.RecordPage(metrics.PageParseFailed, 0)
			break
		}

		metrics.RecordPage(metrics.PageParsed, len(page.OrganicResults))
		s.logger.Debug("parsed result page", "url", pageURL, "results", len(page.OrganicResults))
		result.Pages = append(result.Pages, page)
	}

	result.NrPages = len(result.Pages)
	return result, nil
}
