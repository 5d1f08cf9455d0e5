package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// Every returns the spacing between two tokens of the limit.
func (r RateLimitConfig) Every() time.Duration {
	if r.Requests <= 0 {
		return r.Interval
	}
	return r.Interval / time.Duration(r.Requests)
}

// LogConfig controls the global zap logger.
type LogConfig struct {
	Level  string
	Format string
}

// Config aggregates application-wide configuration values.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	TokenTTL    time.Duration

	RateLimitSearch RateLimitConfig

	DirectoryCSV          string
	SearchProviderURL     string
	EnrichmentProviderURL string
	EnrichmentRate        RateLimitConfig

	AdapterTimeout     time.Duration
	MinAcceptableYield int
	DefaultTargetCount int
	MaxTargetCount     int
	SearchCost         int
	EnrichmentCost     int
	DefaultCredits     int

	Log LogConfig
}

var defaults = map[string]any{
	"jwt_secret":           "dev-secret",
	"port":                 "8080",
	"jwt_ttl":              "24h",
	"rate_limit_search":    "5/min",
	"enrichment_rate":      "10/sec",
	"adapter_timeout":      "15s",
	"min_acceptable_yield": 1,
	"default_target_count": 50,
	"max_target_count":     500,
	"search_cost":          1,
	"enrichment_cost":      3,
	"default_credits":      100,
	"log_level":            "info",
	"log_format":           "json",
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	// Keys without a default still need binding so AutomaticEnv sees them.
	for _, key := range []string{"database_url", "directory_csv", "search_provider_url", "enrichment_provider_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	cfg := &Config{
		DatabaseURL:           strings.TrimSpace(v.GetString("database_url")),
		JWTSecret:             nonEmpty(v.GetString("jwt_secret"), "dev-secret"),
		Port:                  nonEmpty(v.GetString("port"), "8080"),
		TokenTTL:              parseDuration(v.GetString("jwt_ttl"), 24*time.Hour),
		DirectoryCSV:          strings.TrimSpace(v.GetString("directory_csv")),
		SearchProviderURL:     strings.TrimSpace(v.GetString("search_provider_url")),
		EnrichmentProviderURL: strings.TrimSpace(v.GetString("enrichment_provider_url")),
		AdapterTimeout:        parseDuration(v.GetString("adapter_timeout"), 15*time.Second),
		MinAcceptableYield:    v.GetInt("min_acceptable_yield"),
		DefaultTargetCount:    v.GetInt("default_target_count"),
		MaxTargetCount:        v.GetInt("max_target_count"),
		SearchCost:            v.GetInt("search_cost"),
		EnrichmentCost:        v.GetInt("enrichment_cost"),
		DefaultCredits:        v.GetInt("default_credits"),
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	rl, err := parseRateLimit(v.GetString("rate_limit_search"))
	if err != nil {
		return nil, eris.Wrap(err, "config: invalid RATE_LIMIT_SEARCH value")
	}
	cfg.RateLimitSearch = rl

	er, err := parseRateLimit(v.GetString("enrichment_rate"))
	if err != nil {
		return nil, eris.Wrap(err, "config: invalid ENRICHMENT_RATE value")
	}
	cfg.EnrichmentRate = er

	if cfg.DefaultTargetCount <= 0 {
		return nil, eris.Errorf("config: DEFAULT_TARGET_COUNT must be positive, got %d", cfg.DefaultTargetCount)
	}
	if cfg.MaxTargetCount < cfg.DefaultTargetCount {
		return nil, eris.Errorf("config: MAX_TARGET_COUNT %d below DEFAULT_TARGET_COUNT %d", cfg.MaxTargetCount, cfg.DefaultTargetCount)
	}
	if cfg.SearchCost < 0 || cfg.EnrichmentCost < 0 {
		return nil, eris.New("config: tier costs must not be negative")
	}

	return cfg, nil
}

// InitLogger replaces the global zap logger according to cfg.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func parseRateLimit(value string) (RateLimitConfig, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, eris.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, eris.Errorf("invalid request count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	default:
		return RateLimitConfig{}, eris.Errorf("unsupported interval unit: %s", unit)
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

func nonEmpty(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func parseDuration(input string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(input))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
