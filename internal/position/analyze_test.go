package position

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

func TestBias(t *testing.T) {
	b := Bias(d(600), d(400))
	if !b.IsLong || b.Percentage != 60 {
		t.Errorf("expected {true 60}, got %+v", b)
	}

	b = Bias(d(250), d(750))
	if b.IsLong || b.Percentage != 75 {
		t.Errorf("expected {false 75}, got %+v", b)
	}

	b = Bias(decimal.Zero, decimal.Zero)
	if !b.IsLong || b.Percentage != 0 {
		t.Errorf("expected {true 0}, got %+v", b)
	}

	b = Bias(d(500), d(500))
	if !b.IsLong || b.Percentage != 50 {
		t.Errorf("expected tie to favour long at 50, got %+v", b)
	}

	b = Bias(d(2), d(1))
	if b.Percentage != 67 {
		t.Errorf("expected 66.67 to round to 67, got %d", b.Percentage)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	s := Analyze(nil, d(1000))
	if s.Positions == nil || len(s.Positions) != 0 {
		t.Errorf("expected empty positions, got %v", s.Positions)
	}
	if !s.TotalUnrealizedPnl.IsZero() || !s.TotalNotionalValue.IsZero() || !s.NetDelta.IsZero() {
		t.Errorf("expected zero sums, got %+v", s)
	}
	if !s.PositionBias.IsLong || s.PositionBias.Percentage != 0 {
		t.Errorf("expected default bias, got %+v", s.PositionBias)
	}
	if !s.TotalValue.Equal(d(1000)) {
		t.Errorf("expected totalValue = account value, got %s", s.TotalValue)
	}
}

func TestAnalyze_Portfolio(t *testing.T) {
	raws := []model.RawPosition{
		{"position": map[string]any{
			"coin": "BTC", "szi": "0.01", "entryPx": "60000", "positionValue": "600",
			"unrealizedPnl": "50", "marginUsed": "60", "liquidationPx": "54000",
			"leverage": map[string]any{"type": "isolated", "value": 10},
		}},
		{"position": map[string]any{
			"coin": "ETH", "szi": "-0.1", "entryPx": "4000", "positionValue": "400",
			"unrealizedPnl": "-20", "marginUsed": "80", "liquidationPx": "4400",
			"leverage": map[string]any{"type": "cross", "value": 5},
			"cumFunding": map[string]any{"allTime": "2", "sinceOpen": "1"},
		}},
	}

	s := Analyze(raws, d(1000))

	if len(s.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(s.Positions))
	}
	if !s.TotalUnrealizedPnl.Equal(d(30)) {
		t.Errorf("expected totalUnrealizedPnl 30, got %s", s.TotalUnrealizedPnl)
	}
	if !s.TotalNotionalValue.Equal(d(1000)) {
		t.Errorf("expected totalNotional 1000, got %s", s.TotalNotionalValue)
	}
	if !s.LongNotional.Equal(d(600)) || !s.ShortNotional.Equal(d(400)) {
		t.Errorf("expected long 600 / short 400, got %s / %s", s.LongNotional, s.ShortNotional)
	}
	if !s.NetDelta.Equal(d(200)) {
		t.Errorf("expected netDelta 200, got %s", s.NetDelta)
	}
	if !s.PositionBias.IsLong || s.PositionBias.Percentage != 60 {
		t.Errorf("expected {true 60}, got %+v", s.PositionBias)
	}
	if !s.TotalValue.Equal(d(1030)) {
		t.Errorf("expected totalValue 1030, got %s", s.TotalValue)
	}

	r := s.Risk
	if !r.TotalMarginUsed.Equal(d(140)) {
		t.Errorf("expected margin 140, got %s", r.TotalMarginUsed)
	}
	if !r.MarginUtilization.Equal(d(14)) {
		t.Errorf("expected utilization 14%%, got %s", r.MarginUtilization)
	}
	// (10*600 + 5*400) / 1000.
	if !r.AverageLeverage.Equal(d(8)) {
		t.Errorf("expected average leverage 8, got %s", r.AverageLeverage)
	}
	if !r.FundingAllTime.Equal(d(2)) || !r.FundingSinceOpen.Equal(d(1)) {
		t.Errorf("unexpected funding totals %s / %s", r.FundingAllTime, r.FundingSinceOpen)
	}
	// BTC: mark 60000, liq 54000, entry 60000 → 100. ETH: mark 4000 → 100.
	if r.WeakestAsset != "BTC" || !r.WeakestHealth.Equal(d(100)) {
		t.Errorf("expected weakest BTC at 100 (first of ties), got %s at %s", r.WeakestAsset, r.WeakestHealth)
	}
}

func TestSummarize_WeakestHealth(t *testing.T) {
	s := Summarize([]model.Position{
		{Asset: "A", Side: model.Long, Health: d(80)},
		{Asset: "B", Side: model.Short, Health: d(12.5)},
		{Asset: "C", Side: model.Long, Health: d(40)},
	}, decimal.Zero)
	if s.Risk.WeakestAsset != "B" || !s.Risk.WeakestHealth.Equal(d(12.5)) {
		t.Errorf("expected weakest B at 12.5, got %s at %s", s.Risk.WeakestAsset, s.Risk.WeakestHealth)
	}
	if !s.Risk.MarginUtilization.IsZero() {
		t.Errorf("expected zero utilization without account value, got %s", s.Risk.MarginUtilization)
	}
}

func TestAnalyze_SkipsNonObjects(t *testing.T) {
	s := Analyze([]model.RawPosition{nil, {"coin": "BTC", "szi": "1", "entryPx": "10"}}, decimal.Zero)
	if len(s.Positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(s.Positions))
	}
}
