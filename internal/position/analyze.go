package position

import (
	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

// Analyze resolves raw records and summarizes them into a WalletSnapshot.
// Records that are not JSON objects are skipped.
func Analyze(raws []model.RawPosition, accountValueUsd decimal.Decimal) model.WalletSnapshot {
	positions := make([]model.Position, 0, len(raws))
	for _, raw := range raws {
		if p, ok := Resolve(raw); ok {
			positions = append(positions, p)
		}
	}
	return Summarize(positions, accountValueUsd)
}

// Summarize derives portfolio metrics from already resolved positions.
func Summarize(positions []model.Position, accountValueUsd decimal.Decimal) model.WalletSnapshot {
	if positions == nil {
		positions = []model.Position{}
	}

	var (
		totalUpnl     = decimal.Zero
		longNotional  = decimal.Zero
		shortNotional = decimal.Zero
		totalMargin   = decimal.Zero
		levNotional   = decimal.Zero
		fundingAll    = decimal.Zero
		fundingOpen   = decimal.Zero
		weakestAsset  string
		weakestHealth = decimal.Zero
	)

	for i, p := range positions {
		totalUpnl = totalUpnl.Add(p.UnrealizedPnl)
		if p.Side == model.Short {
			shortNotional = shortNotional.Add(p.SizeUsd)
		} else {
			longNotional = longNotional.Add(p.SizeUsd)
		}
		totalMargin = totalMargin.Add(p.MarginUsd)
		levNotional = levNotional.Add(p.Leverage.Mul(p.SizeUsd))
		fundingAll = fundingAll.Add(p.CumulativeFunding.AllTime)
		fundingOpen = fundingOpen.Add(p.CumulativeFunding.SinceOpen)

		if i == 0 || p.Health.LessThan(weakestHealth) {
			weakestAsset = p.Asset
			weakestHealth = p.Health
		}
	}

	totalNotional := longNotional.Add(shortNotional)

	risk := model.RiskSummary{
		TotalMarginUsed:   totalMargin,
		MarginUtilization: decimal.Zero,
		AverageLeverage:   decimal.Zero,
		WeakestAsset:      weakestAsset,
		WeakestHealth:     weakestHealth,
		FundingAllTime:    fundingAll,
		FundingSinceOpen:  fundingOpen,
	}
	if accountValueUsd.IsPositive() {
		risk.MarginUtilization = totalMargin.Div(accountValueUsd).Mul(hundred).Round(2)
	}
	if totalNotional.IsPositive() {
		risk.AverageLeverage = levNotional.Div(totalNotional).Round(2)
	}

	return model.WalletSnapshot{
		Positions:          positions,
		TotalUnrealizedPnl: totalUpnl,
		TotalNotionalValue: totalNotional,
		LongNotional:       longNotional,
		ShortNotional:      shortNotional,
		PositionBias:       Bias(longNotional, shortNotional),
		NetDelta:           longNotional.Sub(shortNotional),
		AccountValueUsd:    accountValueUsd,
		TotalValue:         accountValueUsd.Add(totalUpnl),
		Risk:               risk,
	}
}

// Bias reports the dominant side and its rounded share of total notional.
// With no notional at all it returns {IsLong: true, Percentage: 0} by
// convention.
func Bias(longNotional, shortNotional decimal.Decimal) model.PositionBias {
	total := longNotional.Add(shortNotional)
	if total.IsZero() {
		return model.PositionBias{IsLong: true, Percentage: 0}
	}
	isLong := longNotional.GreaterThanOrEqual(shortNotional)
	dominant := decimal.Max(longNotional, shortNotional)
	return model.PositionBias{
		IsLong:     isLong,
		Percentage: dominant.Div(total).Mul(hundred).Round(0).IntPart(),
	}
}
