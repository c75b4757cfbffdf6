// Package model defines the value types produced by the metrics engine.
// All monetary values use shopspring/decimal; never float64 for money.
//
// Every type here is an immutable snapshot: it is built once from upstream
// payloads and rebuilt from scratch on the next request.
package model

import (
	"github.com/shopspring/decimal"
)

func init() {
	// The dashboard reads amounts as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Side is the direction of an executed fill.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// PositionSide is the direction of an open position.
type PositionSide string

const (
	Long  PositionSide = "Long"
	Short PositionSide = "Short"
)

// RawFill is an upstream trade record as decoded from JSON. Field names vary
// by endpoint; normalize.Fill resolves them.
type RawFill map[string]any

// RawPosition is an upstream open-position record, either flat or nested
// under a "position" key.
type RawPosition map[string]any

// AccountState is the clearinghouse payload for one wallet: its open
// positions plus the account value in USD.
type AccountState struct {
	AssetPositions  []RawPosition   `json:"assetPositions"`
	AccountValueUsd decimal.Decimal `json:"accountValueUsd"`
}

// Fill is a single executed trade.
type Fill struct {
	TimestampMs int64           `json:"timestampMs"`
	Asset       string          `json:"asset"`
	Side        Side            `json:"side"`
	Size        decimal.Decimal `json:"size"`        // absolute units of asset
	Price       decimal.Decimal `json:"price"`
	RealizedPnl decimal.Decimal `json:"realizedPnl"` // 0 if the fill opened exposure
}

// TradeSession groups consecutive same-asset, same-side fills.
type TradeSession struct {
	ID               string          `json:"id"`
	Asset            string          `json:"asset"`
	Side             Side            `json:"side"`
	StartTime        int64           `json:"startTime"`
	EndTime          int64           `json:"endTime"`
	TotalSize        decimal.Decimal `json:"totalSize"`
	AvgPrice         decimal.Decimal `json:"avgPrice"`         // running mean of fill prices
	WeightedAvgPrice decimal.Decimal `json:"weightedAvgPrice"` // size-weighted
	TotalPnl         decimal.Decimal `json:"totalPnl"`
	FillCount        int             `json:"fillCount"`
}

// PnLSummary is realized PnL over fixed windows plus the session breakdown.
type PnLSummary struct {
	TotalPnl  decimal.Decimal            `json:"totalPnl"`
	Last24h   decimal.Decimal            `json:"last24h"`
	Last7d    decimal.Decimal            `json:"last7d"`
	Last30d   decimal.Decimal            `json:"last30d"`
	Sessions  []TradeSession             `json:"groupedTrades"`
	ByAsset   map[string]decimal.Decimal `json:"byAsset"`
	FillCount int                        `json:"fillCount"`
	AsOf      int64                      `json:"asOf"`
}

// CumulativeFunding is the funding paid (negative) or received on a position.
type CumulativeFunding struct {
	AllTime     decimal.Decimal `json:"allTime"`
	SinceChange decimal.Decimal `json:"sinceChange"`
	SinceOpen   decimal.Decimal `json:"sinceOpen"`
}

// Position is an open exposure on one asset at fetch time.
type Position struct {
	Asset             string            `json:"asset"`
	Side              PositionSide      `json:"side"`
	Size              decimal.Decimal   `json:"size"`
	SizeUsd           decimal.Decimal   `json:"sizeUsd"`
	EntryPrice        decimal.Decimal   `json:"entryPrice"`
	MarkPrice         decimal.Decimal   `json:"markPrice"`
	LiquidationPrice  decimal.Decimal   `json:"liquidationPrice"`
	UnrealizedPnl     decimal.Decimal   `json:"unrealizedPnl"`
	Leverage          decimal.Decimal   `json:"leverage"`
	LeverageType      string            `json:"leverageType,omitempty"`
	MaxLeverage       decimal.Decimal   `json:"maxLeverage"`
	MarginUsd         decimal.Decimal   `json:"marginUsd"`
	CumulativeFunding CumulativeFunding `json:"cumulativeFunding"`
	ReturnOnEquity    decimal.Decimal   `json:"returnOnEquity"`
	Health            decimal.Decimal   `json:"health"` // 0–100
}

// PositionBias is the dominant side's share of total notional.
type PositionBias struct {
	IsLong     bool  `json:"isLong"`
	Percentage int64 `json:"percentage"` // 0–100
}

// RiskSummary aggregates margin and leverage exposure across positions.
type RiskSummary struct {
	TotalMarginUsed   decimal.Decimal `json:"totalMarginUsed"`
	MarginUtilization decimal.Decimal `json:"marginUtilization"` // % of account value
	AverageLeverage   decimal.Decimal `json:"averageLeverage"`   // notional-weighted
	WeakestAsset      string          `json:"weakestAsset,omitempty"`
	WeakestHealth     decimal.Decimal `json:"weakestHealth"`
	FundingAllTime    decimal.Decimal `json:"fundingAllTime"`
	FundingSinceOpen  decimal.Decimal `json:"fundingSinceOpen"`
}

// WalletSnapshot is the portfolio view of a wallet's open positions.
type WalletSnapshot struct {
	Positions          []Position      `json:"positions"`
	TotalUnrealizedPnl decimal.Decimal `json:"totalUnrealizedPnl"`
	TotalNotionalValue decimal.Decimal `json:"totalNotionalValue"`
	LongNotional       decimal.Decimal `json:"longNotional"`
	ShortNotional      decimal.Decimal `json:"shortNotional"`
	PositionBias       PositionBias    `json:"positionBias"`
	NetDelta           decimal.Decimal `json:"netDelta"`
	AccountValueUsd    decimal.Decimal `json:"accountValueUsd"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	Risk               RiskSummary     `json:"risk"`
}
