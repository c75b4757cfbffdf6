// Package poller periodically refreshes a fixed set of watched wallets and
// publishes the recomputed metrics, so dashboards update without polling
// the HTTP API themselves.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hlscope/metrics-engine/internal/engine"
	"github.com/hlscope/metrics-engine/internal/metrics"
	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/source"
)

var ErrNoWallets = errors.New("poller: no wallets to watch")

// Publisher receives refreshed metrics. api.WSHub implements it.
type Publisher interface {
	PublishPnL(address string, summary model.PnLSummary)
	PublishSnapshot(address string, snap model.WalletSnapshot)
}

// Config controls the refresh cadence.
type Config struct {
	Addresses   []string
	Interval    time.Duration
	Concurrency int
}

// Poller refreshes watched wallets on a fixed interval.
type Poller struct {
	engine      *engine.Engine
	source      source.Source
	publisher   Publisher
	addresses   []string
	interval    time.Duration
	concurrency int
	now         func() time.Time
}

// New creates a Poller. Addresses are validated and de-duplicated up front;
// an invalid address is an error rather than a wallet that fails forever.
func New(eng *engine.Engine, src source.Source, pub Publisher, cfg Config) (*Poller, error) {
	seen := make(map[string]bool)
	var addrs []string
	for _, a := range cfg.Addresses {
		addr, err := engine.ValidateAddress(a)
		if err != nil {
			return nil, fmt.Errorf("poller: watch address %q: %w", a, err)
		}
		if !seen[addr] {
			seen[addr] = true
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, ErrNoWallets
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Poller{
		engine:      eng,
		source:      src,
		publisher:   pub,
		addresses:   addrs,
		interval:    cfg.Interval,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}, nil
}

// Addresses returns the normalized watch list.
func (p *Poller) Addresses() []string {
	return append([]string(nil), p.addresses...)
}

// Run refreshes every wallet immediately and then once per interval until
// ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	metrics.WatchedWallets.Set(float64(len(p.addresses)))
	slog.Info("poller started", "wallets", len(p.addresses), "interval", p.interval, "concurrency", p.concurrency)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.RefreshAll(ctx)

		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RefreshAll refreshes every watched wallet with bounded concurrency and
// returns the number that failed. Failures are logged and skipped.
func (p *Poller) RefreshAll(ctx context.Context) int {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	failed := make(chan string, len(p.addresses))
	for _, addr := range p.addresses {
		addr := addr
		g.Go(func() error {
			if err := p.Refresh(gctx, addr); err != nil {
				metrics.PollRunsTotal.WithLabelValues("error").Inc()
				slog.Warn("wallet refresh failed", "address", addr, "err", err)
				failed <- addr
				return nil // one bad wallet must not cancel the others
			}
			metrics.PollRunsTotal.WithLabelValues("ok").Inc()
			return nil
		})
	}
	g.Wait()
	close(failed)
	return len(failed)
}

// Refresh fetches one wallet, computes both outputs and publishes them.
// Nothing is published unless both fetches succeed.
func (p *Poller) Refresh(ctx context.Context, address string) error {
	raws, err := p.source.UserFills(ctx, address)
	if err != nil {
		return fmt.Errorf("fetch fills: %w", err)
	}
	state, err := p.source.AccountState(ctx, address)
	if err != nil {
		return fmt.Errorf("fetch account state: %w", err)
	}

	start := time.Now()
	summary, err := p.engine.ComputePnLSummary(raws, p.now().UnixMilli())
	metrics.ObserveComputation("pnl", start)
	if err != nil {
		return fmt.Errorf("compute pnl: %w", err)
	}
	metrics.FillsProcessed.Add(float64(len(raws)))

	start = time.Now()
	snap := p.engine.ComputeWalletSnapshot(state.AssetPositions, state.AccountValueUsd)
	metrics.ObserveComputation("snapshot", start)

	p.publisher.PublishPnL(address, summary)
	p.publisher.PublishSnapshot(address, snap)
	return nil
}
