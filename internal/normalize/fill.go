// Package normalize converts heterogeneous upstream trade records into the
// canonical model.Fill type.
//
// Upstream endpoints disagree on field names, so every field is resolved
// through a fixed alias table, tried in order. A malformed field is coerced to
// its zero value; a record is dropped only when neither its asset nor its
// timestamp can be recovered.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

// Alias priority per field, highest first.
var (
	TimestampKeys = []string{"time", "timestamp", "timestampMs"}
	AssetKeys     = []string{"coin", "asset", "symbol"}
	SizeKeys      = []string{"sz", "size"}
	PriceKeys     = []string{"px", "price"}
	PnlKeys       = []string{"closedPnl", "realizedPnl", "pnl"}
	SideKeys      = []string{"side"}
)

// UnknownAsset labels fills that carry a timestamp but no asset.
const UnknownAsset = "UNKNOWN"

var ErrUnknownFallback = errors.New("normalize: unknown side fallback")

// SideFallback decides the side of a fill whose side code is missing or
// unrecognized.
type SideFallback int

const (
	// FallbackBySign picks Sell for a negative raw size and Buy otherwise.
	FallbackBySign SideFallback = iota
	FallbackBuy
	FallbackSell
)

func (f SideFallback) String() string {
	switch f {
	case FallbackBuy:
		return "buy"
	case FallbackSell:
		return "sell"
	default:
		return "sign"
	}
}

// ParseSideFallback parses "sign", "buy" or "sell".
func ParseSideFallback(s string) (SideFallback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sign":
		return FallbackBySign, nil
	case "buy":
		return FallbackBuy, nil
	case "sell":
		return FallbackSell, nil
	}
	return FallbackBySign, fmt.Errorf("%w: %q", ErrUnknownFallback, s)
}

// Normalizer turns raw fills into model.Fill values. The zero value uses
// FallbackBySign.
type Normalizer struct {
	Fallback SideFallback
}

// New creates a normalizer with the given side fallback policy.
func New(fallback SideFallback) *Normalizer {
	return &Normalizer{Fallback: fallback}
}

var defaultNormalizer = New(FallbackBySign)

// Fill normalizes one record with the default policy.
func Fill(raw model.RawFill) (model.Fill, bool) {
	return defaultNormalizer.Fill(raw)
}

// Fills normalizes a batch with the default policy.
func Fills(raws []model.RawFill) ([]model.Fill, int) {
	return defaultNormalizer.Fills(raws)
}

// Fill normalizes one record. It reports false when the record must be
// skipped because both asset and timestamp are unrecoverable.
func (n *Normalizer) Fill(raw model.RawFill) (model.Fill, bool) {
	if raw == nil {
		return model.Fill{}, false
	}
	asset, hasAsset := StringField(raw, AssetKeys...)
	ts, hasTime := TimestampField(raw, TimestampKeys...)
	if !hasAsset && !hasTime {
		return model.Fill{}, false
	}
	if !hasAsset {
		asset = UnknownAsset
	}

	size, _ := DecimalField(raw, SizeKeys...)
	price, _ := DecimalField(raw, PriceKeys...)
	pnl, _ := DecimalField(raw, PnlKeys...)

	var side any
	for _, k := range SideKeys {
		if v, ok := raw[k]; ok && v != nil {
			side = v
			break
		}
	}

	return model.Fill{
		TimestampMs: ts,
		Asset:       asset,
		Side:        n.Side(side, size),
		Size:        size.Abs(),
		Price:       price,
		RealizedPnl: pnl,
	}, true
}

// Fills normalizes a batch, returning the kept fills in input order and the
// number of skipped records.
func (n *Normalizer) Fills(raws []model.RawFill) ([]model.Fill, int) {
	fills := make([]model.Fill, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		f, ok := n.Fill(raw)
		if !ok {
			dropped++
			continue
		}
		fills = append(fills, f)
	}
	return fills, dropped
}

// Side maps a side code to Buy or Sell. Recognized codes are B/S/A,
// buy/sell, bid/ask and the number 1 (Buy). Anything else goes through the
// fallback policy, using the sign of the raw size.
func (n *Normalizer) Side(code any, rawSize decimal.Decimal) model.Side {
	switch v := code.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "b", "buy", "bid", "1":
			return model.SideBuy
		case "s", "a", "sell", "ask":
			return model.SideSell
		}
	case json.Number, float64, int, int64:
		if d, ok := Decimal(v); ok && d.Equal(decimal.NewFromInt(1)) {
			return model.SideBuy
		}
	}

	switch n.Fallback {
	case FallbackBuy:
		return model.SideBuy
	case FallbackSell:
		return model.SideSell
	}
	if rawSize.IsNegative() {
		return model.SideSell
	}
	return model.SideBuy
}
