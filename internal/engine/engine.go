// Package engine is the single entry point for deriving dashboard metrics
// from raw exchange payloads. It chains normalization, session grouping,
// window aggregation and position analysis.
//
// Engine does no I/O. Callers fetch raw payloads and hand them in, which
// keeps every output a deterministic function of its inputs and lets the
// same Engine serve HTTP handlers, the poller and the CLI concurrently.
package engine

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/normalize"
	"github.com/hlscope/metrics-engine/internal/position"
	"github.com/hlscope/metrics-engine/internal/session"
	"github.com/hlscope/metrics-engine/internal/window"
)

var (
	ErrMissingAddress = errors.New("engine: wallet address is required")
	ErrInvalidAddress = errors.New("engine: wallet address is not a valid hex address")
)

// Engine holds the policies applied while computing metrics. It is immutable
// after New.
type Engine struct {
	normalizer *normalize.Normalizer
	gap        time.Duration
	onDropped  func(n int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithSideFallback sets the policy for fills with an unrecognized side.
func WithSideFallback(f normalize.SideFallback) Option {
	return func(e *Engine) { e.normalizer = normalize.New(f) }
}

// WithSessionGap sets the default session gap. A zero gap joins only fills
// with identical timestamps; negative values are ignored.
func WithSessionGap(gap time.Duration) Option {
	return func(e *Engine) {
		if gap >= 0 {
			e.gap = gap
		}
	}
}

// WithDropHook registers a callback invoked with the number of raw fills
// skipped during normalization, when non-zero.
func WithDropHook(fn func(n int)) Option {
	return func(e *Engine) { e.onDropped = fn }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		normalizer: normalize.New(normalize.FallbackBySign),
		gap:        session.DefaultGap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SessionGap returns the engine's default session gap.
func (e *Engine) SessionGap() time.Duration { return e.gap }

// Fills normalizes raw fills.
func (e *Engine) Fills(raws []model.RawFill) []model.Fill {
	fills, dropped := e.normalizer.Fills(raws)
	if dropped > 0 && e.onDropped != nil {
		e.onDropped(dropped)
	}
	return fills
}

// ComputePnLSummary derives windowed PnL and trade sessions from raw fills.
// It fails only when nowMs is negative.
func (e *Engine) ComputePnLSummary(raws []model.RawFill, nowMs int64) (model.PnLSummary, error) {
	return e.ComputePnLSummaryWithGap(raws, nowMs, e.gap)
}

// ComputePnLSummaryWithGap is ComputePnLSummary with a per-call session gap.
func (e *Engine) ComputePnLSummaryWithGap(raws []model.RawFill, nowMs int64, gap time.Duration) (model.PnLSummary, error) {
	if nowMs < 0 {
		return model.PnLSummary{}, window.ErrNegativeNow
	}
	return window.AggregateWithGap(e.Fills(raws), nowMs, gap)
}

// ComputeWalletSnapshot derives the portfolio snapshot from raw position
// records and the account value.
func (e *Engine) ComputeWalletSnapshot(raws []model.RawPosition, accountValueUsd decimal.Decimal) model.WalletSnapshot {
	return position.Analyze(raws, accountValueUsd)
}

var defaultEngine = New()

// ComputePnLSummary runs the default Engine.
func ComputePnLSummary(raws []model.RawFill, nowMs int64) (model.PnLSummary, error) {
	return defaultEngine.ComputePnLSummary(raws, nowMs)
}

// ComputeWalletSnapshot runs the default Engine.
func ComputeWalletSnapshot(raws []model.RawPosition, accountValueUsd decimal.Decimal) model.WalletSnapshot {
	return defaultEngine.ComputeWalletSnapshot(raws, accountValueUsd)
}

// ValidateAddress checks that a wallet address is present and well formed,
// returning it lower-cased. It must pass before any aggregation work starts.
func ValidateAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrMissingAddress
	}
	if !has0xPrefix(addr) || !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
