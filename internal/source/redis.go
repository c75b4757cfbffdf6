package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hlscope/metrics-engine/internal/metrics"
	"github.com/hlscope/metrics-engine/internal/model"
)

// CachedSource wraps a primary Source with a Redis read-through cache.
// Reads check Redis first then fall back to the primary; Redis failures
// degrade to a miss rather than an error.
type CachedSource struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedSource creates a cached wrapper around a primary source.
func NewCachedSource(primary Source, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedSource) UserFills(ctx context.Context, address string) ([]model.RawFill, error) {
	var fills []model.RawFill
	if s.get(ctx, fillsKey(address), &fills) {
		return fills, nil
	}

	fills, err := s.primary.UserFills(ctx, address)
	if err != nil {
		return nil, err
	}
	s.set(ctx, fillsKey(address), fills)
	return fills, nil
}

func (s *CachedSource) AccountState(ctx context.Context, address string) (*model.AccountState, error) {
	var st model.AccountState
	if s.get(ctx, stateKey(address), &st) {
		return &st, nil
	}

	state, err := s.primary.AccountState(ctx, address)
	if err != nil {
		return nil, err
	}
	s.set(ctx, stateKey(address), state)
	return state, nil
}

// Invalidate drops both cached payloads for a wallet.
func (s *CachedSource) Invalidate(ctx context.Context, address string) error {
	return s.rdb.Del(ctx, fillsKey(address), stateKey(address)).Err()
}

// --- Cache helpers ---

func (s *CachedSource) get(ctx context.Context, key string, out any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()
		return false
	}
	// Raw payloads hold arbitrary numbers; keep them exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if dec.Decode(out) != nil {
		metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()
		return false
	}
	metrics.CacheLookups.WithLabelValues("redis", "hit").Inc()
	return true
}

func (s *CachedSource) set(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func fillsKey(addr string) string { return fmt.Sprintf("fills:%s", addr) }
func stateKey(addr string) string { return fmt.Sprintf("state:%s", addr) }
