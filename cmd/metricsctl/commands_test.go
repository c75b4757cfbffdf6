package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const fillsJSON = `[
	{"time": 0, "coin": "BTC", "side": "B", "sz": "1", "px": "100", "closedPnl": "0"},
	{"time": 60000, "coin": "BTC", "side": "B", "sz": "1", "px": "102", "closedPnl": "0"},
	{"time": 600000, "coin": "ETH", "side": "S", "sz": "2", "px": "3000", "closedPnl": "150"}
]`

const stateJSON = `{
	"assetPositions": [
		{"type": "oneWay", "position": {"coin": "BTC", "szi": "1", "entryPx": "600", "positionValue": "600", "unrealizedPnl": "10"}},
		{"type": "oneWay", "position": {"coin": "ETH", "szi": "-2", "entryPx": "200", "positionValue": "400", "unrealizedPnl": "-5"}}
	],
	"marginSummary": {"accountValue": "1000"}
}`

func TestPnLCmd_Stdin(t *testing.T) {
	out, err := run(t, fillsJSON, "pnl", "--now", "600000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s model.PnLSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !s.TotalPnl.Equal(d(150)) || len(s.Sessions) != 2 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestPnLCmd_NowZero(t *testing.T) {
	out, err := run(t, fillsJSON, "pnl", "--now", "0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s model.PnLSummary
	json.Unmarshal([]byte(out), &s)
	if s.AsOf != 0 {
		t.Errorf("expected asOf 0, got %d", s.AsOf)
	}
	if !s.Last24h.Equal(d(150)) || !s.TotalPnl.Equal(d(150)) {
		t.Errorf("unexpected windows %s / %s", s.Last24h, s.TotalPnl)
	}
}

func TestPnLCmd_FileAndGap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.json")
	if err := os.WriteFile(path, []byte(fillsJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "pnl", "--file", path, "--now", "600000", "--gap", "30s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s model.PnLSummary
	json.Unmarshal([]byte(out), &s)
	if len(s.Sessions) != 3 {
		t.Errorf("expected 3 sessions with a 30s gap, got %d", len(s.Sessions))
	}
}

func TestPnLCmd_Errors(t *testing.T) {
	if _, err := run(t, "not json", "pnl"); err == nil {
		t.Error("expected decode error")
	}
	if _, err := run(t, fillsJSON, "pnl", "--side-fallback", "maybe"); err == nil {
		t.Error("expected error for unknown fallback")
	}
	if _, err := run(t, "", "pnl", "--file", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSnapshotCmd(t *testing.T) {
	out, err := run(t, stateJSON, "snapshot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var snap model.WalletSnapshot
	json.Unmarshal([]byte(out), &snap)
	if !snap.TotalValue.Equal(d(1005)) || snap.PositionBias.Percentage != 60 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	out, err = run(t, stateJSON, "snapshot", "--account-value", "2000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	json.Unmarshal([]byte(out), &snap)
	if !snap.AccountValueUsd.Equal(d(2000)) {
		t.Errorf("expected account value override 2000, got %s", snap.AccountValueUsd)
	}

	if _, err := run(t, stateJSON, "snapshot", "--account-value", "lots"); err == nil {
		t.Error("expected error for invalid account value")
	}
}

func TestFetchCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		switch req["type"] {
		case "userFills":
			w.Write([]byte(fillsJSON))
		case "clearinghouseState":
			w.Write([]byte(stateJSON))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()
	addr := "0x1111111111111111111111111111111111111111"

	out, err := run(t, "", "fetch", "snapshot", "--address", addr, "--url", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var snap model.WalletSnapshot
	json.Unmarshal([]byte(out), &snap)
	if len(snap.Positions) != 2 || !snap.AccountValueUsd.Equal(d(1000)) {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	out, err = run(t, "", "fetch", "pnl", "-a", addr, "--url", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s model.PnLSummary
	json.Unmarshal([]byte(out), &s)
	if !s.TotalPnl.Equal(d(150)) {
		t.Errorf("expected totalPnl 150, got %s", s.TotalPnl)
	}

	if _, err := run(t, "", "fetch", "positions", "-a", addr); err == nil {
		t.Error("expected error for unknown fetch target")
	}
	if _, err := run(t, "", "fetch", "pnl", "-a", "0x123"); err == nil {
		t.Error("expected error for invalid address")
	}
}
