package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/serper/internal/report"
	"github.com/FranksOps/serper/internal/storage"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recorded fetch attempts with a summary",
	Long: `Read the fetch attempts recorded by "serper query --attempts-dsn" and
print them newest first, followed by a summary of status codes and
block detections.`,
	Args: cobra.NoArgs,
	RunE: runAttempts,
}

func init() {
	rootCmd.AddCommand(attemptsCmd)

	flags := attemptsCmd.Flags()
	flags.String("url", "", "only attempts for this exact URL")
	flags.Bool("blocked", false, "only attempts that hit a block page (use --blocked=false for the rest)")
	flags.Duration("since", 0, "only attempts newer than this age, e.g. 24h")
	flags.Int("limit", 50, "max attempts to list (0=all)")
	flags.Int("offset", 0, "attempts to skip")
	flags.StringP("format", "f", "text", "output format: text, json")
}

func runAttempts(cmd *cobra.Command, _ []string) error {
	newLogger(cmd.ErrOrStderr())

	dsn := viper.GetString("attempts_dsn")
	if dsn == "" {
		return errors.New("no attempts store configured: set --attempts-dsn or SERPER_ATTEMPTS_DSN")
	}

	flags := cmd.Flags()
	var filter storage.Filter
	filter.URL, _ = flags.GetString("url")
	filter.Limit, _ = flags.GetInt("limit")
	filter.Offset, _ = flags.GetInt("offset")
	if flags.Changed("blocked") {
		blocked, _ := flags.GetBool("blocked")
		filter.Blocked = &blocked
	}
	if since, _ := flags.GetDuration("since"); since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}
	format, _ := flags.GetString("format")

	ctx := cmd.Context()
	backend, err := openBackend(ctx, dsn)
	if err != nil {
		return err
	}
	defer backend.Close()

	attempts, err := backend.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}
	summary := report.GenerateSummary(attempts)

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return report.WriteAttemptsJSON(out, attempts, summary)
	case "text", "":
		if err := report.WriteAttemptsText(out, attempts); err != nil {
			return err
		}
		fmt.Fprintln(out)
		return report.WriteSummaryText(out, summary)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
