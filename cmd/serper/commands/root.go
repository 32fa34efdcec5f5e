// Package commands implements the CLI commands for serper.
package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "serper",
	Short: "Search-engine result page scraper",
	Long: `Serper fetches Google result pages for a query, retries through
consent walls and "unusual traffic" pages, and prints the organic
results as JSON, YAML, text or HTML.

Examples:
  # First result page for a query
  serper query golang generics

  # Three pages in English, rendered as text
  serper query "site:go.dev tutorial" --pages 3 --lang en-US --format text

  # Keep an audit log of every fetch attempt and inspect it
  serper query golang --attempts-dsn sqlite://attempts.db
  serper attempts --attempts-dsn sqlite://attempts.db --blocked`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.serper.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("attempts-dsn", "", "fetch attempt audit store: sqlite://PATH, postgres://..., json://PATH")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("attempts_dsn", flags.Lookup("attempts-dsn"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".serper")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SERPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine.
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from --debug, --quiet and --log-format
// and installs it as the slog default.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	if viper.GetBool("quiet") {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(viper.GetString("log_format"), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
