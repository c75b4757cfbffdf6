// Package session groups a time-ordered fill history into trade sessions:
// runs of fills on the same asset and side that start within a gap of the
// session's first fill.
//
// Sessions are rebuilt from scratch on every call and never merged
// afterwards.
package session

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

// DefaultGap is the maximum distance between a session's first fill and a
// later fill that still joins it.
const DefaultGap = 5 * time.Minute

// namespace seeds deterministic session IDs.
var namespace = uuid.MustParse("9a6c1f4e-6a55-4b8e-9f1e-2d0c3b7a5e11")

// Group builds trade sessions from fills, most recent first. A negative gap
// is treated as zero. The input slice is not modified.
func Group(fills []model.Fill, gap time.Duration) []model.TradeSession {
	if len(fills) == 0 {
		return []model.TradeSession{}
	}
	if gap < 0 {
		gap = 0
	}
	gapMs := gap.Milliseconds()

	ordered := make([]model.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TimestampMs < ordered[j].TimestampMs
	})

	var (
		sessions []model.TradeSession
		open     *builder
	)
	for _, f := range ordered {
		if open == nil ||
			f.TimestampMs-open.s.StartTime > gapMs ||
			f.Asset != open.s.Asset ||
			f.Side != open.s.Side {
			if open != nil {
				sessions = append(sessions, open.close())
			}
			open = start(f)
			continue
		}
		open.add(f)
	}
	sessions = append(sessions, open.close())

	// Start times are non-decreasing, so reversing yields most recent first.
	slices.Reverse(sessions)
	return sessions
}

type builder struct {
	s        model.TradeSession
	notional decimal.Decimal
}

func start(f model.Fill) *builder {
	return &builder{
		s: model.TradeSession{
			Asset:     f.Asset,
			Side:      f.Side,
			StartTime: f.TimestampMs,
			EndTime:   f.TimestampMs,
			TotalSize: f.Size,
			AvgPrice:  f.Price,
			TotalPnl:  f.RealizedPnl,
			FillCount: 1,
		},
		notional: f.Size.Mul(f.Price),
	}
}

// add folds a fill into the session. AvgPrice is the unweighted running
// mean of fill prices; WeightedAvgPrice is derived from notional on close.
func (b *builder) add(f model.Fill) {
	n := decimal.NewFromInt(int64(b.s.FillCount))
	b.s.AvgPrice = b.s.AvgPrice.Mul(n).Add(f.Price).Div(n.Add(decimal.NewFromInt(1)))
	b.s.TotalSize = b.s.TotalSize.Add(f.Size)
	b.s.TotalPnl = b.s.TotalPnl.Add(f.RealizedPnl)
	b.s.EndTime = f.TimestampMs
	b.s.FillCount++
	b.notional = b.notional.Add(f.Size.Mul(f.Price))
}

func (b *builder) close() model.TradeSession {
	s := b.s
	if s.TotalSize.IsPositive() {
		s.WeightedAvgPrice = b.notional.Div(s.TotalSize)
	} else {
		s.WeightedAvgPrice = s.AvgPrice
	}
	s.ID = ID(s.Asset, s.Side, s.StartTime)
	return s
}

// ID returns the deterministic identifier of the session that starts with a
// fill on asset/side at startMs.
func ID(asset string, side model.Side, startMs int64) string {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s|%s|%d", asset, side, startMs))).String()
}
