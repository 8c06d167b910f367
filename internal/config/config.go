package config

import (
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	HTTPAddr      string        `mapstructure:"HTTP_ADDR"`
	APIBaseURL    string        `mapstructure:"API_BASE_URL"`
	HTTPTimeout   time.Duration `mapstructure:"HTTP_TIMEOUT"`
	Production    bool          `mapstructure:"PRODUCTION"`
	CORSOrigins   []string      `mapstructure:"CORS_ORIGINS"`
	SessionMaxAge int           `mapstructure:"SESSION_MAX_AGE"`

	DBDriver string `mapstructure:"DB_DRIVER"`
	DBDSN    string `mapstructure:"DB_DSN"`

	SubmitRetries   int           `mapstructure:"SUBMIT_RETRIES"`
	RetryBaseDelay  time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	DeparturePolicy string        `mapstructure:"DEPARTURE_POLICY"`
	HistoryPolicy   string        `mapstructure:"HISTORY_POLICY"`

	TutorMode       string `mapstructure:"TUTOR_MODE"`
	TutorCLIPath    string `mapstructure:"TUTOR_CLI_PATH"`
	AnthropicModel  string `mapstructure:"ANTHROPIC_MODEL"`
	AnthropicAPIKey string `mapstructure:"ANTHROPIC_API_KEY"`
}

var defaults = map[string]interface{}{
	"HTTP_ADDR":         ":8080",
	"API_BASE_URL":      "https://zoogle.projectdaffodil.xyz/api/v1",
	"HTTP_TIMEOUT":      "15s",
	"PRODUCTION":        false,
	"CORS_ORIGINS":      "*",
	"SESSION_MAX_AGE":   3600,
	"DB_DRIVER":         "sqlite",
	"DB_DSN":            "",
	"SUBMIT_RETRIES":    3,
	"RETRY_BASE_DELAY":  "250ms",
	"DEPARTURE_POLICY":  "advance",
	"HISTORY_POLICY":    "latest",
	"TUTOR_MODE":        "mock",
	"TUTOR_CLI_PATH":    "claude",
	"ANTHROPIC_MODEL":   "claude-sonnet-4-5",
	"ANTHROPIC_API_KEY": "",
}

// Load reads defaults, an optional config.yaml from dir and SATPREP_*
// environment overrides, in increasing order of precedence.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config file")
		}
		glog.V(1).Info("config.yaml not found, using environment variables and defaults")
	}

	v.SetEnvPrefix("SATPREP")
	v.AutomaticEnv()
	// The Anthropic SDK convention is an unprefixed key.
	if err := v.BindEnv("ANTHROPIC_API_KEY", "SATPREP_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, errors.Wrap(err, "bind ANTHROPIC_API_KEY")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the rest of the server cannot act on.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.DeparturePolicy {
	case "advance", "any":
	default:
		return errors.Errorf("unsupported DEPARTURE_POLICY %q", c.DeparturePolicy)
	}
	switch c.HistoryPolicy {
	case "latest", "first":
	default:
		return errors.Errorf("unsupported HISTORY_POLICY %q", c.HistoryPolicy)
	}
	switch c.TutorMode {
	case "api", "cli", "mock":
	default:
		return errors.Errorf("unsupported TUTOR_MODE %q", c.TutorMode)
	}
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	if c.SubmitRetries < 1 {
		c.SubmitRetries = 1
	}
	return nil
}

// splitOrigins accepts both a YAML list and a comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
