// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/hlscope/metrics-engine/internal/hyperliquid"
	"github.com/hlscope/metrics-engine/internal/normalize"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL        string        `env:"DATABASE_URL"`
	RedisURL           string        `env:"REDIS_URL"`
	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	LocalCacheMaxItems int64         `env:"LOCAL_CACHE_MAX_ITEMS" envDefault:"10000"`

	HyperliquidURL     string        `env:"HYPERLIQUID_API_URL" envDefault:"https://api.hyperliquid.xyz"`
	HyperliquidTimeout time.Duration `env:"HYPERLIQUID_TIMEOUT" envDefault:"10s"`
	HyperliquidRPS     float64       `env:"HYPERLIQUID_RPS" envDefault:"5"`
	HyperliquidBurst   int           `env:"HYPERLIQUID_BURST" envDefault:"10"`

	SessionGap   time.Duration `env:"SESSION_GAP" envDefault:"5m"`
	SideFallback string        `env:"SIDE_FALLBACK" envDefault:"sign"`

	WatchAddresses  []string      `env:"WATCH_ADDRESSES" envSeparator:","`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	PollConcurrency int           `env:"POLL_CONCURRENCY" envDefault:"4"`
}

// Load reads .env if present, then parses and validates the environment.
// Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return Parse()
}

// Parse reads configuration from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.WatchAddresses = compact(cfg.WatchAddresses)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := normalize.ParseSideFallback(c.SideFallback); err != nil {
		return fmt.Errorf("config: SIDE_FALLBACK: %w", err)
	}
	if c.CacheTTL <= 0 {
		return errors.New("config: CACHE_TTL must be positive")
	}
	if c.LocalCacheMaxItems < 1 {
		return errors.New("config: LOCAL_CACHE_MAX_ITEMS must be at least 1")
	}
	if c.HyperliquidTimeout <= 0 {
		return errors.New("config: HYPERLIQUID_TIMEOUT must be positive")
	}
	if c.HyperliquidRPS < 0 || c.HyperliquidBurst < 1 {
		return errors.New("config: HYPERLIQUID_RPS must be >= 0 and HYPERLIQUID_BURST >= 1")
	}
	if c.SessionGap < 0 {
		return errors.New("config: SESSION_GAP must not be negative")
	}
	if len(c.WatchAddresses) > 0 {
		if c.PollInterval <= 0 {
			return errors.New("config: POLL_INTERVAL must be positive")
		}
		if c.PollConcurrency < 1 {
			return errors.New("config: POLL_CONCURRENCY must be at least 1")
		}
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown LOG_LEVEL %q", c.LogLevel)
}

// Fallback returns the parsed side fallback policy.
func (c Config) Fallback() normalize.SideFallback {
	f, _ := normalize.ParseSideFallback(c.SideFallback)
	return f
}

// Hyperliquid returns the upstream client configuration.
func (c Config) Hyperliquid() hyperliquid.Config {
	return hyperliquid.Config{
		BaseURL:           c.HyperliquidURL,
		Timeout:           c.HyperliquidTimeout,
		RequestsPerSecond: c.HyperliquidRPS,
		Burst:             c.HyperliquidBurst,
	}
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
