// Package source defines where raw wallet payloads come from. The engine
// never fetches anything itself; handlers, the poller and the CLI ask a
// Source and pass the result to the engine.
//
// Implementations include the Hyperliquid REST client (live data),
// PostgreSQL (an ingested archive), in-memory (testing), and two read-through
// caches that wrap any of them: Redis (shared) and ristretto (in-process).
package source

import (
	"context"

	"github.com/hlscope/metrics-engine/internal/model"
)

// Source supplies raw exchange payloads for a wallet address. Addresses are
// passed lower-cased and already validated.
type Source interface {
	// UserFills returns the wallet's fills as raw records.
	UserFills(ctx context.Context, address string) ([]model.RawFill, error)

	// AccountState returns the wallet's open positions and account value.
	AccountState(ctx context.Context, address string) (*model.AccountState, error)
}
