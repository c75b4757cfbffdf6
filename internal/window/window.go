// Package window computes realized PnL over fixed look-back windows.
//
// The current time is injected as nowMs so that results are a pure function
// of the inputs.
package window

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/session"
)

// Look-back windows, in milliseconds.
const (
	Day   = int64(24 * time.Hour / time.Millisecond)
	Week  = 7 * Day
	Month = 30 * Day
)

// ErrNegativeNow is returned when nowMs is before the epoch.
var ErrNegativeNow = errors.New("window: nowMs must not be negative")

// Aggregate sums realized PnL over all fills and over the 24h/7d/30d
// windows ending at nowMs, and groups the same fills into sessions with the
// default gap.
func Aggregate(fills []model.Fill, nowMs int64) (model.PnLSummary, error) {
	return AggregateWithGap(fills, nowMs, session.DefaultGap)
}

// AggregateWithGap is Aggregate with a custom session gap.
func AggregateWithGap(fills []model.Fill, nowMs int64, gap time.Duration) (model.PnLSummary, error) {
	if nowMs < 0 {
		return model.PnLSummary{}, ErrNegativeNow
	}

	summary := model.PnLSummary{
		TotalPnl:  decimal.Zero,
		Last24h:   decimal.Zero,
		Last7d:    decimal.Zero,
		Last30d:   decimal.Zero,
		ByAsset:   make(map[string]decimal.Decimal),
		FillCount: len(fills),
		AsOf:      nowMs,
	}

	for _, f := range fills {
		summary.TotalPnl = summary.TotalPnl.Add(f.RealizedPnl)
		summary.ByAsset[f.Asset] = summary.ByAsset[f.Asset].Add(f.RealizedPnl)

		if f.TimestampMs >= nowMs-Month {
			summary.Last30d = summary.Last30d.Add(f.RealizedPnl)
		}
		if f.TimestampMs >= nowMs-Week {
			summary.Last7d = summary.Last7d.Add(f.RealizedPnl)
		}
		if f.TimestampMs >= nowMs-Day {
			summary.Last24h = summary.Last24h.Add(f.RealizedPnl)
		}
	}

	summary.Sessions = session.Group(fills, gap)
	return summary, nil
}

// Sum returns realized PnL over fills with timestampMs >= sinceMs.
func Sum(fills []model.Fill, sinceMs int64) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fills {
		if f.TimestampMs >= sinceMs {
			total = total.Add(f.RealizedPnl)
		}
	}
	return total
}
