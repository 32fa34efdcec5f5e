package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/serper/internal/config"
	"github.com/FranksOps/serper/internal/metrics"
	"github.com/FranksOps/serper/internal/report"
	"github.com/FranksOps/serper/internal/scraper"
	"github.com/FranksOps/serper/internal/serp"
	"github.com/FranksOps/serper/pkg/ratelimit"
	"github.com/FranksOps/serper/pkg/useragent"
)

var (
	_ serp.PageFetcher   = (*scraper.Fetcher)(nil)
	_ serp.RobotsChecker = (*scraper.RobotsTxtAuditor)(nil)
	_ serp.Provider      = (*serp.Scraper)(nil)
)

var queryCmd = &cobra.Command{
	Use:   "query <terms...>",
	Short: "Fetch and parse result pages for a query",
	Long: `Fetch up to --pages result pages for the query formed by joining the
arguments with spaces. Every page is fetched with a fresh consent
cookie and retried up to --max-attempts times when the request fails
or the engine answers with an "unusual traffic" page. The first page
that still fails ends the query; the pages collected so far are
printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	flags := queryCmd.Flags()

	flags.IntP("pages", "n", 1, "number of result pages to fetch")
	flags.String("uule", "", "location token appended verbatim as &uule=")
	flags.StringP("lang", "l", scraper.DefaultLanguage, "Accept-Language sent with every request")
	flags.String("base-url", serp.Google.BaseURL, "search endpoint")

	flags.String("proxy", "", "single outbound proxy URL")
	flags.String("fingerprint", "go", "TLS fingerprint: go, chrome, firefox, safari, random")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.Int("max-attempts", scraper.DefaultMaxAttempts, "attempts per page, the first one included")
	flags.Duration("retry-wait", 0, "pause between attempts")
	flags.Float64("rps", 0, "max requests per second (0=unlimited)")
	flags.Float64("jitter", 0, "random spread applied to the request interval (0-1)")
	flags.StringSlice("user-agent", nil, "User-Agent to send (repeat to rotate)")
	flags.StringSlice("block-phrase", nil, "text that marks a block page (repeat; replaces the defaults)")
	flags.Bool("respect-robots", false, "check robots.txt before the first page")

	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the query runs")
	flags.StringP("format", "f", "json", "output format: json, yaml, text, html")
	flags.StringP("output", "o", "", "output file (default: stdout)")

	for key, flag := range map[string]string{
		"pages":          "pages",
		"uule":           "uule",
		"lang":           "lang",
		"base_url":       "base-url",
		"proxy":          "proxy",
		"fingerprint":    "fingerprint",
		"timeout":        "timeout",
		"max_attempts":   "max-attempts",
		"retry_wait":     "retry-wait",
		"rps":            "rps",
		"jitter":         "jitter",
		"user_agents":    "user-agent",
		"block_phrases":  "block-phrase",
		"respect_robots": "respect-robots",
		"metrics_addr":   "metrics-addr",
		"format":         "format",
		"output":         "output",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr())

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := openBackend(ctx, cfg.AttemptsDSN)
	if err != nil {
		return err
	}
	if backend != nil {
		defer backend.Close()
	}

	var limiter *ratelimit.Limiter
	if cfg.RPS > 0 {
		limiter = ratelimit.NewLimiter(cfg.RPS, cfg.Jitter)
	}

	engine := cfg.Engine()
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Timeout,
		MaxAttempts:  cfg.MaxAttempts,
		RetryWait:    cfg.RetryWait,
		Language:     cfg.Language,
		Proxy:        cfg.Proxy,
		UAPool:       useragent.NewPool(cfg.UserAgents),
		Fingerprint:  cfg.Profile(),
		Limiter:      limiter,
		ConsentURL:   engine.BaseURL,
		BlockPhrases: cfg.BlockPhrases,
		Backend:      backend,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	scfg := serp.Config{Engine: engine, Logger: logger}
	if cfg.RespectRobots {
		scfg.Robots = scraper.NewRobotsTxtAuditor(fetcher.Client(), logger)
		scfg.RobotsUserAgent = fetcher.UserAgent()
	}
	var provider serp.Provider = serp.New(fetcher, scfg)

	var out io.Writer = cmd.OutOrStdout()
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	query := strings.Join(args, " ")

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			return metrics.NewServer(cfg.MetricsAddr).Run(serverCtx)
		})
	}

	g.Go(func() error {
		defer stopServer()

		logger.Debug("running query", "query", query, "pages", cfg.Pages, "lang", cfg.Language)
		res, err := provider.RunQuery(gctx, query, serp.QueryOptions{
			Pages:    cfg.Pages,
			UULE:     cfg.UULE,
			Language: cfg.Language,
		})
		if err != nil {
			return err
		}
		if res.NrPages < cfg.Pages {
			logger.Warn("query ended early", "query", query, "requested", cfg.Pages, "collected", res.NrPages)
		}
		return report.Write(out, format, res)
	})

	return g.Wait()
}
