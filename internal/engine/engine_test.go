package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/normalize"
	"github.com/hlscope/metrics-engine/internal/window"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestComputePnLSummary_EndToEnd(t *testing.T) {
	raws := []model.RawFill{
		{"time": 0, "coin": "BTC", "side": "B", "sz": "1", "px": "100", "closedPnl": "0"},
		{"time": 60000, "coin": "BTC", "side": "B", "sz": "1", "px": "102", "closedPnl": "0"},
		{"time": 600000, "coin": "ETH", "side": "S", "sz": "2", "px": "3000", "closedPnl": "150"},
	}

	s, err := ComputePnLSummary(raws, 600000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.TotalPnl.Equal(d(150)) {
		t.Errorf("expected totalPnl 150, got %s", s.TotalPnl)
	}
	if !s.Last24h.Equal(d(150)) {
		t.Errorf("expected last24h 150, got %s", s.Last24h)
	}
	if len(s.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(s.Sessions))
	}

	eth, btc := s.Sessions[0], s.Sessions[1]
	if eth.Asset != "ETH" || !eth.TotalSize.Equal(d(2)) || !eth.TotalPnl.Equal(d(150)) {
		t.Errorf("unexpected ETH session: %+v", eth)
	}
	if btc.Asset != "BTC" || !btc.TotalSize.Equal(d(2)) || !btc.TotalPnl.IsZero() {
		t.Errorf("unexpected BTC session: %+v", btc)
	}
	if btc.FillCount != 2 || !btc.AvgPrice.Equal(d(101)) {
		t.Errorf("expected 2 BTC fills averaging 101, got %d at %s", btc.FillCount, btc.AvgPrice)
	}
}

func TestComputePnLSummary_NegativeNow(t *testing.T) {
	_, err := ComputePnLSummary(nil, -1)
	if !errors.Is(err, window.ErrNegativeNow) {
		t.Errorf("expected ErrNegativeNow, got %v", err)
	}
}

func TestComputePnLSummary_Empty(t *testing.T) {
	s, err := ComputePnLSummary([]model.RawFill{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.TotalPnl.IsZero() || len(s.Sessions) != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestEngine_Options(t *testing.T) {
	var dropped int
	e := New(
		WithSideFallback(normalize.FallbackSell),
		WithSessionGap(time.Minute),
		WithDropHook(func(n int) { dropped += n }),
	)
	if e.SessionGap() != time.Minute {
		t.Errorf("expected 1m gap, got %s", e.SessionGap())
	}

	raws := []model.RawFill{
		{"time": 0, "coin": "BTC", "sz": "1", "px": "1"},
		{"time": 90000, "coin": "BTC", "sz": "1", "px": "1"},
		{"px": "1"},
	}
	s, err := e.ComputePnLSummary(raws, 100000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected drop hook to see 1, got %d", dropped)
	}
	if len(s.Sessions) != 2 {
		t.Errorf("expected 2 sessions with 1m gap, got %d", len(s.Sessions))
	}
	if s.Sessions[0].Side != model.SideSell {
		t.Errorf("expected sell fallback, got %s", s.Sessions[0].Side)
	}

	s, _ = e.ComputePnLSummaryWithGap(raws, 100000, 10*time.Minute)
	if len(s.Sessions) != 1 {
		t.Errorf("expected per-call gap to override, got %d sessions", len(s.Sessions))
	}
}

func TestWithSessionGap_IgnoresNegative(t *testing.T) {
	e := New(WithSessionGap(-time.Second))
	if e.SessionGap() != 5*time.Minute {
		t.Errorf("expected default gap, got %s", e.SessionGap())
	}
}

func TestWithSessionGap_ZeroJoinsOnlyIdenticalTimestamps(t *testing.T) {
	e := New(WithSessionGap(0))
	if e.SessionGap() != 0 {
		t.Fatalf("expected zero gap, got %s", e.SessionGap())
	}

	raws := []model.RawFill{
		{"time": 1000, "coin": "BTC", "side": "B", "sz": "1", "px": "100"},
		{"time": 1000, "coin": "BTC", "side": "B", "sz": "1", "px": "100"},
		{"time": 1001, "coin": "BTC", "side": "B", "sz": "1", "px": "100"},
	}
	s, err := e.ComputePnLSummary(raws, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(s.Sessions))
	}
}

func TestComputeWalletSnapshot(t *testing.T) {
	raws := []model.RawPosition{
		{"position": map[string]any{"coin": "BTC", "szi": "1", "positionValue": "600", "unrealizedPnl": "10"}},
		{"position": map[string]any{"coin": "ETH", "szi": "-1", "positionValue": "400", "unrealizedPnl": "-5"}},
	}
	s := ComputeWalletSnapshot(raws, d(1000))
	if !s.PositionBias.IsLong || s.PositionBias.Percentage != 60 {
		t.Errorf("expected {true 60}, got %+v", s.PositionBias)
	}
	if !s.TotalValue.Equal(d(1005)) {
		t.Errorf("expected totalValue 1005, got %s", s.TotalValue)
	}
}

func TestComputeWalletSnapshot_Empty(t *testing.T) {
	s := ComputeWalletSnapshot(nil, decimal.Zero)
	if !s.PositionBias.IsLong || s.PositionBias.Percentage != 0 {
		t.Errorf("expected {true 0}, got %+v", s.PositionBias)
	}
	if len(s.Positions) != 0 {
		t.Errorf("expected no positions, got %d", len(s.Positions))
	}
}

func TestValidateAddress(t *testing.T) {
	addr, err := ValidateAddress("  0xAbCdEf0123456789abcdef0123456789ABCDEF01 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("expected lower-cased address, got %s", addr)
	}

	addr, err = ValidateAddress("0XAbCdEf0123456789abcdef0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("unexpected error for upper-case prefix: %v", err)
	}
	if addr != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("expected lower-cased address, got %s", addr)
	}

	if _, err := ValidateAddress(""); !errors.Is(err, ErrMissingAddress) {
		t.Errorf("expected ErrMissingAddress, got %v", err)
	}
	for _, bad := range []string{"0x123", "abcdef0123456789abcdef0123456789abcdef01", "0xZZcdef0123456789abcdef0123456789abcdef01"} {
		if _, err := ValidateAddress(bad); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("%s: expected ErrInvalidAddress, got %v", bad, err)
		}
	}
}
