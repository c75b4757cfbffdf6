// Package hyperliquid is a REST client for the Hyperliquid info endpoint.
// It fetches the raw fill and clearinghouse payloads the engine consumes and
// leaves them untyped beyond the envelope, so field-name drift is absorbed by
// the normalizers rather than by this package.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/hlscope/metrics-engine/internal/metrics"
	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/normalize"
)

// DefaultBaseURL is the public mainnet API root.
const DefaultBaseURL = "https://api.hyperliquid.xyz"

var (
	ErrRateLimited = errors.New("hyperliquid: rate limited")
	ErrBadStatus   = errors.New("hyperliquid: unexpected status")
)

// Config holds the client's connection parameters.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables client-side limiting
	Burst             int
}

// Client talks to POST {BaseURL}/info. It holds no per-wallet state and is
// safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client from cfg, filling in defaults for empty fields.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
	}
}

type infoRequest struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	StartTime *int64 `json:"startTime,omitempty"`
}

// MarginSummary is the account-level margin block of clearinghouseState.
// Values are kept loosely typed; the exchange sends decimal strings.
type MarginSummary struct {
	AccountValue    any `json:"accountValue"`
	TotalMarginUsed any `json:"totalMarginUsed"`
	TotalNtlPos     any `json:"totalNtlPos"`
	TotalRawUsd     any `json:"totalRawUsd"`
}

// ClearinghouseState is the perpetuals account payload for one wallet.
type ClearinghouseState struct {
	AssetPositions     []model.RawPosition `json:"assetPositions"`
	MarginSummary      MarginSummary       `json:"marginSummary"`
	CrossMarginSummary MarginSummary       `json:"crossMarginSummary"`
	Withdrawable       any                 `json:"withdrawable"`
	Time               int64               `json:"time"`
}

// AccountValue returns the margin summary's account value, falling back to
// the withdrawable balance when the former is absent.
func (s *ClearinghouseState) AccountValue() decimal.Decimal {
	if v, ok := normalize.Decimal(s.MarginSummary.AccountValue); ok {
		return v
	}
	v, _ := normalize.Decimal(s.Withdrawable)
	return v
}

// UserFills returns the wallet's most recent fills as raw records.
func (c *Client) UserFills(ctx context.Context, address string) ([]model.RawFill, error) {
	var fills []model.RawFill
	if err := c.post(ctx, infoRequest{Type: "userFills", User: address}, &fills); err != nil {
		return nil, fmt.Errorf("hyperliquid: user fills %s: %w", address, err)
	}
	if fills == nil {
		fills = []model.RawFill{}
	}
	return fills, nil
}

// UserFillsByTime returns fills at or after startMs.
func (c *Client) UserFillsByTime(ctx context.Context, address string, startMs int64) ([]model.RawFill, error) {
	req := infoRequest{Type: "userFillsByTime", User: address, StartTime: &startMs}
	var fills []model.RawFill
	if err := c.post(ctx, req, &fills); err != nil {
		return nil, fmt.Errorf("hyperliquid: user fills since %d for %s: %w", startMs, address, err)
	}
	if fills == nil {
		fills = []model.RawFill{}
	}
	return fills, nil
}

// ClearinghouseState returns the wallet's perpetuals account state.
func (c *Client) ClearinghouseState(ctx context.Context, address string) (*ClearinghouseState, error) {
	var state ClearinghouseState
	if err := c.post(ctx, infoRequest{Type: "clearinghouseState", User: address}, &state); err != nil {
		return nil, fmt.Errorf("hyperliquid: clearinghouse state %s: %w", address, err)
	}
	return &state, nil
}

// AccountState returns the open positions and account value for a wallet.
func (c *Client) AccountState(ctx context.Context, address string) (*model.AccountState, error) {
	state, err := c.ClearinghouseState(ctx, address)
	if err != nil {
		return nil, err
	}
	positions := state.AssetPositions
	if positions == nil {
		positions = []model.RawPosition{}
	}
	return &model.AccountState{
		AssetPositions:  positions,
		AccountValueUsd: state.AccountValue(),
	}, nil
}

func (c *Client) post(ctx context.Context, body infoRequest, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.WithLabelValues(body.Type).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(body.Type, "error").Inc()
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequestsTotal.WithLabelValues(body.Type, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, truncate(data, 200))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
