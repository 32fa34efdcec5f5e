// Package config loads serper settings from flags, the environment and an
// optional .serper.yaml file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/serper/internal/fingerprint"
	"github.com/FranksOps/serper/internal/report"
	"github.com/FranksOps/serper/internal/scraper"
	"github.com/FranksOps/serper/internal/serp"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Config is the merged view of every serper setting.
type Config struct {
	Pages         int           `mapstructure:"pages" validate:"gte=0"`
	UULE          string        `mapstructure:"uule"`
	Language      string        `mapstructure:"lang" validate:"required"`
	Proxy         string        `mapstructure:"proxy"`
	Fingerprint   string        `mapstructure:"fingerprint" validate:"omitempty,oneof=chrome firefox safari go random"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gte=1,lte=20"`
	RetryWait     time.Duration `mapstructure:"retry_wait" validate:"gte=0"`
	RPS           float64       `mapstructure:"rps" validate:"gte=0"`
	Jitter        float64       `mapstructure:"jitter" validate:"gte=0,lte=1"`
	UserAgents    []string      `mapstructure:"user_agents"`
	BlockPhrases  []string      `mapstructure:"block_phrases"`
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	AttemptsDSN   string        `mapstructure:"attempts_dsn"`
	MetricsAddr   string        `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	Format        string        `mapstructure:"format"`
	Output        string        `mapstructure:"output"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pages", 1)
	v.SetDefault("lang", scraper.DefaultLanguage)
	v.SetDefault("fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max_attempts", scraper.DefaultMaxAttempts)
	v.SetDefault("retry_wait", time.Duration(0))
	v.SetDefault("rps", 0.0)
	v.SetDefault("jitter", 0.0)
	v.SetDefault("base_url", serp.Google.BaseURL)
	v.SetDefault("respect_robots", false)
	v.SetDefault("format", string(report.FormatJSON))

	// Keys without a meaningful default are still registered so that
	// AutomaticEnv picks them up during Unmarshal.
	for _, key := range []string{"uule", "proxy", "attempts_dsn", "metrics_addr", "output"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("user_agents", []string{})
	v.SetDefault("block_phrases", []string{})
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the values that need a parser: the
// language tag, the fingerprint profile, the proxy URL and the output format.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if c.Language != "" {
		if _, _, err := language.ParseAcceptLanguage(c.Language); err != nil {
			errs = append(errs, fmt.Errorf("lang %q: %w", c.Language, err))
		}
	}
	if _, err := fingerprint.ParseProfile(c.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	if _, err := scraper.ParseProxy(c.Proxy); err != nil {
		errs = append(errs, err)
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Profile returns the parsed fingerprint profile.
func (c *Config) Profile() fingerprint.Profile {
	p, _ := fingerprint.ParseProfile(c.Fingerprint)
	return p
}

// Engine returns Google's layout bound to the configured base URL.
func (c *Config) Engine() serp.Engine {
	e := serp.Google
	if c.BaseURL != "" {
		e.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
	return e
}
