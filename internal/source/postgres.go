package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

// PostgresSource implements Source over an archive of ingested fills and
// clearinghouse snapshots. Monetary columns are NUMERIC and read back as
// text so no precision is lost on the way to the normalizer.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a PostgreSQL-backed source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// UserFills returns archived fills oldest first, shaped like the exchange's
// userFills records.
func (s *PostgresSource) UserFills(ctx context.Context, address string) ([]model.RawFill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT coin, side, px::TEXT, sz::TEXT, closed_pnl::TEXT, time_ms
		 FROM user_fills WHERE lower(address) = $1 ORDER BY time_ms, tid`, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("query fills %s: %w", address, err)
	}
	defer rows.Close()

	fills := []model.RawFill{}
	for rows.Next() {
		var coin, side, px, sz, closedPnl string
		var timeMs int64
		if err := rows.Scan(&coin, &side, &px, &sz, &closedPnl, &timeMs); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		fills = append(fills, model.RawFill{
			"coin":      coin,
			"side":      side,
			"px":        px,
			"sz":        sz,
			"closedPnl": closedPnl,
			"time":      timeMs,
		})
	}
	return fills, rows.Err()
}

// AccountState returns the most recent clearinghouse snapshot. A wallet with
// no snapshot has no positions.
func (s *PostgresSource) AccountState(ctx context.Context, address string) (*model.AccountState, error) {
	var positionsJSON []byte
	var accountValue string

	err := s.pool.QueryRow(ctx,
		`SELECT asset_positions, account_value::TEXT
		 FROM clearinghouse_snapshots WHERE lower(address) = $1
		 ORDER BY taken_at DESC LIMIT 1`, strings.ToLower(address)).
		Scan(&positionsJSON, &accountValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.AccountState{AssetPositions: []model.RawPosition{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", address, err)
	}

	positions, err := decodePositions(positionsJSON)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", address, err)
	}
	av, _ := decimal.NewFromString(accountValue)

	return &model.AccountState{AssetPositions: positions, AccountValueUsd: av}, nil
}

func decodePositions(data []byte) ([]model.RawPosition, error) {
	positions := []model.RawPosition{}
	if len(data) == 0 {
		return positions, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&positions); err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []model.RawPosition{}
	}
	return positions, nil
}
