// Package position turns raw clearinghouse position records into
// model.Position values and derives portfolio-level metrics from them:
// directional bias, net delta, liquidation health and margin risk.
//
// Records are resolved permissively. A field that cannot be parsed is
// coerced to zero instead of rejecting the batch.
package position

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/normalize"
)

// Alias priority per field, highest first.
var (
	AssetKeys       = []string{"coin", "asset", "symbol"}
	SignedSizeKeys  = []string{"szi", "size", "sz"}
	SizeUsdKeys     = []string{"sizeUsd", "positionValue"}
	EntryKeys       = []string{"entryPx", "entryPrice"}
	MarkKeys        = []string{"markPx", "markPrice"}
	LiquidationKeys = []string{"liquidationPx", "liquidationPrice"}
	UnrealizedKeys  = []string{"unrealizedPnl", "pnl"}
	MarginKeys      = []string{"marginUsed", "marginUsd", "margin"}
	MaxLeverageKeys = []string{"maxLeverage"}
	FundingKeys     = []string{"cumFunding", "cumulativeFunding"}
)

var (
	// epsilon floors the margin used as the ROE denominator.
	epsilon = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Resolve converts a raw record, flat or wrapped under "position", into a
// Position. It reports false only for records that are not JSON objects.
func Resolve(raw model.RawPosition) (model.Position, bool) {
	m, ok := normalize.Object(raw)
	if !ok || m == nil {
		return model.Position{}, false
	}
	if inner, ok := normalize.Object(m["position"]); ok {
		m = inner
	}

	asset, ok := normalize.StringField(m, AssetKeys...)
	if !ok {
		asset = normalize.UnknownAsset
	}

	szi, _ := normalize.DecimalField(m, SignedSizeKeys...)
	entry, _ := normalize.DecimalField(m, EntryKeys...)
	liq, _ := normalize.DecimalField(m, LiquidationKeys...)
	upnl, _ := normalize.DecimalField(m, UnrealizedKeys...)
	margin, _ := normalize.DecimalField(m, MarginKeys...)

	sizeUsd, hasSizeUsd := normalize.DecimalField(m, SizeUsdKeys...)
	if hasSizeUsd {
		sizeUsd = sizeUsd.Abs()
	} else {
		sizeUsd = szi.Mul(entry).Abs()
	}

	mark, hasMark := normalize.DecimalField(m, MarkKeys...)
	if !hasMark {
		mark = entry
		if hasSizeUsd && !szi.IsZero() {
			mark = sizeUsd.Div(szi.Abs())
		}
	}

	leverage, leverageType := resolveLeverage(m["leverage"])
	maxLeverage, _ := normalize.DecimalField(m, MaxLeverageKeys...)
	if !maxLeverage.IsPositive() {
		maxLeverage = leverage
	}

	side := resolveSide(m["side"], szi)

	p := model.Position{
		Asset:             asset,
		Side:              side,
		Size:              szi.Abs(),
		SizeUsd:           sizeUsd,
		EntryPrice:        entry.Abs(),
		MarkPrice:         mark.Abs(),
		LiquidationPrice:  liq.Abs(),
		UnrealizedPnl:     upnl,
		Leverage:          leverage,
		LeverageType:      leverageType,
		MaxLeverage:       maxLeverage,
		MarginUsd:         margin.Abs(),
		CumulativeFunding: resolveFunding(m),
	}
	p.ReturnOnEquity = ReturnOnEquity(p.UnrealizedPnl, p.MarginUsd)
	p.Health = Health(p.Side, p.EntryPrice, p.MarkPrice, p.LiquidationPrice)
	return p, true
}

// resolveSide prefers an explicit side and falls back to the sign of szi.
func resolveSide(v any, szi decimal.Decimal) model.PositionSide {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "long", "l", "b", "buy":
			return model.Long
		case "short", "s", "a", "sell":
			return model.Short
		}
	}
	if szi.IsNegative() {
		return model.Short
	}
	return model.Long
}

// resolveLeverage accepts either a bare number or the exchange's
// {"type": "cross", "value": 20} object. Missing or non-positive leverage
// defaults to 1.
func resolveLeverage(v any) (decimal.Decimal, string) {
	var (
		lev decimal.Decimal
		typ string
	)
	if obj, ok := normalize.Object(v); ok {
		lev, _ = normalize.DecimalField(obj, "value")
		typ, _ = normalize.StringField(obj, "type")
	} else {
		lev, _ = normalize.Decimal(v)
	}
	if !lev.IsPositive() {
		lev = decimal.NewFromInt(1)
	}
	return lev, typ
}

func resolveFunding(m map[string]any) model.CumulativeFunding {
	var f model.CumulativeFunding
	for _, k := range FundingKeys {
		obj, ok := normalize.Object(m[k])
		if !ok {
			continue
		}
		f.AllTime, _ = normalize.DecimalField(obj, "allTime")
		f.SinceChange, _ = normalize.DecimalField(obj, "sinceChange")
		f.SinceOpen, _ = normalize.DecimalField(obj, "sinceOpen")
		break
	}
	return f
}

// ReturnOnEquity is unrealized PnL over margin, with margin floored at 1 USD.
func ReturnOnEquity(unrealizedPnl, margin decimal.Decimal) decimal.Decimal {
	return unrealizedPnl.Div(decimal.Max(margin, epsilon))
}

// Health is the share of the entry-to-liquidation distance still remaining,
// in [0, 100]. A position without a liquidation price scores 100.
func Health(side model.PositionSide, entry, mark, liq decimal.Decimal) decimal.Decimal {
	if liq.IsZero() {
		return hundred
	}

	remaining := mark.Sub(liq)
	span := entry.Sub(liq)
	if side == model.Short {
		remaining = liq.Sub(mark)
		span = liq.Sub(entry)
	}

	if span.IsZero() {
		if remaining.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}

	h := remaining.Div(span).Mul(hundred)
	if h.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if h.GreaterThan(hundred) {
		return hundred
	}
	return h.Round(2)
}
