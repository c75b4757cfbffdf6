package source

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/hlscope/metrics-engine/internal/metrics"
	"github.com/hlscope/metrics-engine/internal/model"
)

// LocalCachedSource wraps a primary Source with an in-process ristretto
// cache. Each entry costs one, so maxItems bounds the number of cached
// payloads. Cached values are shared; the raw records inside must be
// treated as read-only.
type LocalCachedSource struct {
	primary Source
	c       *ristretto.Cache
	ttl     time.Duration
}

// NewLocalCachedSource creates an in-process cached wrapper.
func NewLocalCachedSource(primary Source, maxItems int64, ttl time.Duration) (*LocalCachedSource, error) {
	if maxItems < 1 {
		maxItems = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("source: create local cache: %w", err)
	}
	return &LocalCachedSource{primary: primary, c: c, ttl: ttl}, nil
}

func (s *LocalCachedSource) UserFills(ctx context.Context, address string) ([]model.RawFill, error) {
	if v, ok := s.lookup(fillsKey(address)); ok {
		fills := v.([]model.RawFill)
		return append([]model.RawFill{}, fills...), nil
	}

	fills, err := s.primary.UserFills(ctx, address)
	if err != nil {
		return nil, err
	}
	s.c.SetWithTTL(fillsKey(address), append([]model.RawFill{}, fills...), 1, s.ttl)
	return fills, nil
}

func (s *LocalCachedSource) AccountState(ctx context.Context, address string) (*model.AccountState, error) {
	if v, ok := s.lookup(stateKey(address)); ok {
		st := v.(model.AccountState)
		st.AssetPositions = append([]model.RawPosition{}, st.AssetPositions...)
		return &st, nil
	}

	state, err := s.primary.AccountState(ctx, address)
	if err != nil {
		return nil, err
	}
	s.c.SetWithTTL(stateKey(address), *state, 1, s.ttl)
	return state, nil
}

// Invalidate drops both cached payloads for a wallet.
func (s *LocalCachedSource) Invalidate(address string) {
	s.c.Del(fillsKey(address))
	s.c.Del(stateKey(address))
}

// Wait blocks until buffered writes are applied.
func (s *LocalCachedSource) Wait() { s.c.Wait() }

// Close stops the cache's background goroutines.
func (s *LocalCachedSource) Close() { s.c.Close() }

func (s *LocalCachedSource) lookup(key string) (any, bool) {
	v, ok := s.c.Get(key)
	if ok {
		metrics.CacheLookups.WithLabelValues("local", "hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("local", "miss").Inc()
	}
	return v, ok
}
