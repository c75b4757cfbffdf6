// Package api provides the HTTP handlers that expose the metrics engine:
// compute-on-payload endpoints, wallet endpoints backed by a Source, and
// the WebSocket hub that streams refreshed metrics.
//
// All monetary values use shopspring/decimal and serialize as JSON numbers.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/engine"
	"github.com/hlscope/metrics-engine/internal/metrics"
	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/source"
	"github.com/hlscope/metrics-engine/internal/window"
)

const maxBodyBytes = 8 << 20

// Service serves wallet metrics. It holds no per-wallet state.
type Service struct {
	engine *engine.Engine
	source source.Source
	now    func() time.Time
}

// NewService creates a new API service. Pass nil for src if only the
// compute-on-payload endpoints are needed.
func NewService(eng *engine.Engine, src source.Source) *Service {
	return &Service{
		engine: eng,
		source: src,
		now:    time.Now,
	}
}

// SetClock replaces the wall clock used when a request carries no nowMs.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Routes mounts the service's endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/pnl", s.PostPnL)
	r.Post("/snapshot", s.PostSnapshot)
	r.Get("/wallets/{address}/pnl", s.GetWalletPnL)
	r.Get("/wallets/{address}/snapshot", s.GetWalletSnapshot)
}

// --- Request types ---

// PnLRequest is the JSON body for POST /pnl.
type PnLRequest struct {
	Address string          `json:"address"`
	Fills   []model.RawFill `json:"fills"`
	NowMs   *int64          `json:"nowMs,omitempty"` // defaults to server time
	GapMs   *int64          `json:"gapMs,omitempty"` // defaults to the engine's gap
}

// SnapshotRequest is the JSON body for POST /snapshot.
type SnapshotRequest struct {
	Address         string              `json:"address"`
	RawPositions    []model.RawPosition `json:"rawPositions"`
	AccountValueUsd decimal.Decimal     `json:"accountValueUsd"`
}

// --- HTTP Handlers ---

// PostPnL handles POST /api/v1/pnl
func (s *Service) PostPnL(w http.ResponseWriter, r *http.Request) {
	var req PnLRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	addr, err := engine.ValidateAddress(req.Address)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	nowMs := s.now().UnixMilli()
	if req.NowMs != nil {
		nowMs = *req.NowMs
	}
	gap := s.engine.SessionGap()
	if req.GapMs != nil {
		g, ok := gapFromMs(*req.GapMs)
		if !ok {
			writeError(w, "gapMs must be between 0 and 9223372036854", http.StatusBadRequest)
			return
		}
		gap = g
	}

	summary, err := s.computePnL(req.Fills, nowMs, gap)
	if err != nil {
		writeComputeError(w, err)
		return
	}

	slog.Debug("pnl computed", "address", addr, "fills", len(req.Fills), "sessions", len(summary.Sessions))
	writeJSON(w, http.StatusOK, summary)
}

// PostSnapshot handles POST /api/v1/snapshot
func (s *Service) PostSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	addr, err := engine.ValidateAddress(req.Address)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap := s.computeSnapshot(req.RawPositions, req.AccountValueUsd)
	slog.Debug("snapshot computed", "address", addr, "positions", len(snap.Positions))
	writeJSON(w, http.StatusOK, snap)
}

// GetWalletPnL handles GET /api/v1/wallets/{address}/pnl
// Fetches fills from the configured source; ?gapMs= overrides the session gap.
func (s *Service) GetWalletPnL(w http.ResponseWriter, r *http.Request) {
	addr, err := engine.ValidateAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	gap := s.engine.SessionGap()
	if v := r.URL.Query().Get("gapMs"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		g, ok := gapFromMs(ms)
		if err != nil || !ok {
			writeError(w, "gapMs must be an integer between 0 and 9223372036854", http.StatusBadRequest)
			return
		}
		gap = g
	}

	if s.source == nil {
		writeError(w, "no wallet source configured", http.StatusNotImplemented)
		return
	}

	raws, err := s.source.UserFills(r.Context(), addr)
	if err != nil {
		slog.Error("fetch fills failed", "address", addr, "err", err)
		writeError(w, "failed to fetch fills", http.StatusBadGateway)
		return
	}

	summary, err := s.computePnL(raws, s.now().UnixMilli(), gap)
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetWalletSnapshot handles GET /api/v1/wallets/{address}/snapshot
func (s *Service) GetWalletSnapshot(w http.ResponseWriter, r *http.Request) {
	addr, err := engine.ValidateAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.source == nil {
		writeError(w, "no wallet source configured", http.StatusNotImplemented)
		return
	}

	state, err := s.source.AccountState(r.Context(), addr)
	if err != nil {
		slog.Error("fetch account state failed", "address", addr, "err", err)
		writeError(w, "failed to fetch account state", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, s.computeSnapshot(state.AssetPositions, state.AccountValueUsd))
}

func (s *Service) computePnL(raws []model.RawFill, nowMs int64, gap time.Duration) (model.PnLSummary, error) {
	start := time.Now()
	defer metrics.ObserveComputation("pnl", start)
	metrics.FillsProcessed.Add(float64(len(raws)))
	return s.engine.ComputePnLSummaryWithGap(raws, nowMs, gap)
}

func (s *Service) computeSnapshot(raws []model.RawPosition, accountValue decimal.Decimal) model.WalletSnapshot {
	start := time.Now()
	defer metrics.ObserveComputation("snapshot", start)
	return s.engine.ComputeWalletSnapshot(raws, accountValue)
}

// maxGapMs is the largest gap, in milliseconds, a time.Duration can hold.
const maxGapMs = math.MaxInt64 / int64(time.Millisecond)

func gapFromMs(ms int64) (time.Duration, bool) {
	if ms < 0 || ms > maxGapMs {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// decodeBody decodes JSON keeping numbers exact.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		return err
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	return dec.Decode(v)
}

func writeComputeError(w http.ResponseWriter, err error) {
	if errors.Is(err, window.ErrNegativeNow) {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Error("computation failed", "err", err)
	writeError(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
