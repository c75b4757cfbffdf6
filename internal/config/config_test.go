package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hlscope/metrics-engine/internal/normalize"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.SessionGap != 5*time.Minute {
		t.Errorf("expected 5m session gap, got %s", cfg.SessionGap)
	}
	if cfg.Fallback() != normalize.FallbackBySign {
		t.Errorf("expected sign fallback, got %s", cfg.Fallback())
	}
	if len(cfg.WatchAddresses) != 0 {
		t.Errorf("expected no watch addresses, got %v", cfg.WatchAddresses)
	}
	hl := cfg.Hyperliquid()
	if hl.BaseURL != "https://api.hyperliquid.xyz" || hl.Timeout != 10*time.Second || hl.Burst != 10 {
		t.Errorf("unexpected hyperliquid config %+v", hl)
	}
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SESSION_GAP", "90s")
	t.Setenv("SIDE_FALLBACK", "sell")
	t.Setenv("WATCH_ADDRESSES", " 0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa, ,0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	t.Setenv("POLL_CONCURRENCY", "8")
	t.Setenv("HYPERLIQUID_RPS", "2.5")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if lvl, _ := cfg.SlogLevel(); lvl != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", lvl)
	}
	if cfg.SessionGap != 90*time.Second {
		t.Errorf("expected 90s gap, got %s", cfg.SessionGap)
	}
	if cfg.Fallback() != normalize.FallbackSell {
		t.Errorf("expected sell fallback, got %s", cfg.Fallback())
	}
	if len(cfg.WatchAddresses) != 2 || cfg.WatchAddresses[0] != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("expected 2 trimmed addresses, got %q", cfg.WatchAddresses)
	}
	if cfg.PollConcurrency != 8 || cfg.HyperliquidRPS != 2.5 {
		t.Errorf("unexpected poll/rps values %d / %v", cfg.PollConcurrency, cfg.HyperliquidRPS)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LOG_LEVEL", "verbose"},
		{"SIDE_FALLBACK", "guess"},
		{"CACHE_TTL", "0s"},
		{"HYPERLIQUID_BURST", "0"},
		{"SESSION_GAP", "-1m"},
		{"POLL_INTERVAL", "banana"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Parse(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestValidate_PollingOnlyWhenWatching(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.PollConcurrency = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected poll settings ignored without wallets, got %v", err)
	}
	cfg.WatchAddresses = []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero concurrency with wallets")
	}
}

func TestValidate_SideFallbackError(t *testing.T) {
	cfg, _ := Parse()
	cfg.SideFallback = "coin-flip"
	if err := cfg.Validate(); !errors.Is(err, normalize.ErrUnknownFallback) {
		t.Errorf("expected ErrUnknownFallback, got %v", err)
	}
}
