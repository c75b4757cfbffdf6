package source

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

// MemorySource implements Source with in-memory maps. Used for testing
// and development. Unknown wallets have no fills and no positions.
type MemorySource struct {
	mu     sync.RWMutex
	fills  map[string][]model.RawFill
	states map[string]model.AccountState
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		fills:  make(map[string][]model.RawFill),
		states: make(map[string]model.AccountState),
	}
}

// AddFills appends raw fills for a wallet.
func (s *MemorySource) AddFills(address string, fills ...model.RawFill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills[address] = append(s.fills[address], fills...)
}

// SetAccountState replaces a wallet's account state.
func (s *MemorySource) SetAccountState(address string, positions []model.RawPosition, accountValueUsd decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[address] = model.AccountState{
		AssetPositions:  append([]model.RawPosition(nil), positions...),
		AccountValueUsd: accountValueUsd,
	}
}

func (s *MemorySource) UserFills(_ context.Context, address string) ([]model.RawFill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Copy the slice header so callers can't append into our backing array.
	out := make([]model.RawFill, len(s.fills[address]))
	copy(out, s.fills[address])
	return out, nil
}

func (s *MemorySource) AccountState(_ context.Context, address string) (*model.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[address]
	if !ok {
		return &model.AccountState{AssetPositions: []model.RawPosition{}}, nil
	}
	st.AssetPositions = append([]model.RawPosition{}, st.AssetPositions...)
	return &st, nil
}
