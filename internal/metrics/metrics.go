package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/FranksOps/serper/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeStatus    = "status"
	OutcomeBlocked   = "blocked"
	OutcomeTransport = "transport"
)

// Page outcomes used as the "outcome" label of PagesTotal.
const (
	PageParsed      = "parsed"
	PageFetchFailed = "fetch_failed"
	PageParseFailed = "parse_failed"
	PageDisallowed  = "disallowed"
)

var (
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serper_fetch_attempts_total",
			Help: "Fetch attempts against result pages, including retries",
		},
		[]string{"domain", "outcome", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serper_fetch_duration_seconds",
			Help:    "Duration of single fetch attempts in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serper_fetch_bytes_total",
			Help: "Response bytes downloaded across all attempts",
		},
		[]string{"domain"},
	)

	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serper_pages_total",
			Help: "Result pages handled by the pagination driver",
		},
		[]string{"outcome"},
	)

	OrganicResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serper_organic_results_total",
			Help: "Organic results extracted from result pages",
		},
	)

	SkippedContainersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serper_skipped_containers_total",
			Help: "Result containers skipped by the extractor",
		},
		[]string{"reason"},
	)
)

// Outcome classifies an attempt for the "outcome" label.
func Outcome(a *storage.Attempt) string {
	switch {
	case a.Succeeded():
		return OutcomeOK
	case a.StatusCode != 0 && (a.StatusCode < 200 || a.StatusCode > 299):
		return OutcomeStatus
	case a.Blocked:
		return OutcomeBlocked
	default:
		return OutcomeTransport
	}
}

// RecordAttempt updates the fetch metrics for one attempt against domain.
func RecordAttempt(domain string, a *storage.Attempt) {
	if a == nil {
		return
	}
	FetchAttemptsTotal.WithLabelValues(domain, Outcome(a), a.DetectionSrc).Inc()
	FetchDuration.WithLabelValues(domain).Observe(a.Duration.Seconds())
	FetchBytesTotal.WithLabelValues(domain).Add(float64(a.BodyBytes))
}

// RecordPage counts one page handled by the pagination driver. results is
// only meaningful for parsed pages.
func RecordPage(outcome string, results int) {
	PagesTotal.WithLabelValues(outcome).Inc()
	if results > 0 {
		OrganicResultsTotal.Add(float64(results))
	}
}

// RecordSkip counts a result container the extractor dropped.
func RecordSkip(reason string) {
	SkippedContainersTotal.WithLabelValues(reason).Inc()
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// NewServer prepares a server exposing /metrics on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run serves until ctx is canceled, then shuts down gracefully. A clean
// shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
