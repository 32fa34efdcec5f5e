package serp

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/FranksOps/serper/internal/metrics"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const fragmentLimit = 300

// Skip reasons used for logging and metrics.
const (
	SkipNoTitle = "no_title"
	SkipNoLink  = "no_link"
)

// ParseError reports a page that does not look like a result page at all.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// Extractor parses result pages laid out according to its Selectors.
type Extractor struct {
	selectors Selectors
	logger    *slog.Logger
}

// NewExtractor returns an Extractor for the given selectors. A nil logger
// selects slog.Default().
func NewExtractor(selectors Selectors, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{selectors: selectors, logger: logger}
}

// ParseSERP parses a Google result page with the default selectors.
func ParseSERP(page, sourceURL string) (SERP, error) {
	return NewExtractor(Google.Selectors, nil).Parse(page, sourceURL)
}

// Parse extracts the organic results of page. sourceURL is the address the
// page was fetched from; relative links are resolved against it.
//
// Every container counts towards the position, including skipped ones, so
// positions of the survivors may have gaps.
func (e *Extractor) Parse(page, sourceURL string) (SERP, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return SERP{}, &ParseError{URL: sourceURL, Reason: err.Error()}
	}
	if doc.Find(e.selectors.Region).Length() == 0 {
		return SERP{}, &ParseError{URL: sourceURL, Reason: "results region not found"}
	}

	base, err := url.Parse(sourceURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}

	results := []OrganicResult{}
	doc.Find(e.selectors.Container).Each(func(i int, s *goquery.Selection) {
		position := i + 1

		title := collapseText(s.Find(e.selectors.Title).First())
		if title == "" {
			e.skip(s, sourceURL, position, SkipNoTitle)
			return
		}

		href, ok := s.Find(e.selectors.Link).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			e.skip(s, sourceURL, position, SkipNoLink)
			return
		}

		results = append(results, OrganicResult{
			Position:      position,
			Title:         title,
			Link:          resolveLink(base, strings.TrimSpace(href)),
			DisplayedLink: collapseText(s.Find(e.selectors.DisplayedLink).First()),
			Snippet:       collapseText(s.Find(e.selectors.Snippet).First()),
		})
	})

	return SERP{OrganicResults: results}, nil
}

func (e *Extractor) skip(s *goquery.Selection, sourceURL string, position int, reason string) {
	fragment, _ := goquery.OuterHtml(s)
	e.logger.Warn("skipping result container",
		"url", sourceURL,
		"position", position,
		"reason", reason,
		"fragment", truncate(fragment, fragmentLimit),
	)
	metrics.RecordSkip(reason)
}

// collapseText joins the trimmed, non-empty text nodes under s with single
// spaces. Script and style contents are ignored.
func collapseText(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		for _, t := range collectText(n) {
			if t = strings.TrimSpace(t); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node) []string {
	switch {
	case n.Type == html.TextNode:
		return []string{n.Data}
	case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
		return nil
	}
	var result []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result = append(result, collectText(c)...)
	}
	return result
}

// resolveLink unwraps Google's /url?q= redirects and makes relative links
// absolute against base.
func resolveLink(base *url.URL, href string) string {
	if strings.HasPrefix(href, "/url?") {
		if q, err := url.ParseQuery(strings.TrimPrefix(href, "/url?")); err == nil {
			if target := q.Get("q"); target != "" {
				return target
			}
			if target := q.Get("url"); target != "" {
				return target
			}
		}
	}
	if base == nil {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
