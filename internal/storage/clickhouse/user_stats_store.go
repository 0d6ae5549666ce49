package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

// UserStatsStore implements storage.UserStatsStore using ClickHouse.
// Each snapshot is a set of rows sharing computed_at; the latest snapshot is
// the one with the highest computed_at.
type UserStatsStore struct {
	conn *Conn
}

// NewUserStatsStore creates a new UserStatsStore.
func NewUserStatsStore(conn *Conn) *UserStatsStore {
	return &UserStatsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.UserStatsStore = (*UserStatsStore)(nil)

// SaveSnapshot stores all stats of one run. An empty snapshot stores nothing.
func (s *UserStatsStore) SaveSnapshot(ctx context.Context, snap *domain.StatsSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}
	if len(snap.Stats) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO user_stats (
			computed_at, address, total_volume, avg_buy_price, avg_sell_price, max_balance
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, st := range snap.Stats {
		err = batch.Append(
			uint64(snap.ComputedAt), st.Address,
			st.TotalVolume, st.AvgBuyPrice, st.AvgSellPrice, st.MaxBalance,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent snapshot, stats ordered by address.
func (s *UserStatsStore) GetLatest(ctx context.Context) (*domain.StatsSnapshot, error) {
	query := `
		SELECT computed_at, address, total_volume, avg_buy_price, avg_sell_price, max_balance
		FROM user_stats
		WHERE computed_at = (SELECT max(computed_at) FROM user_stats)
		ORDER BY address ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest user stats: %w", err)
	}
	defer rows.Close()

	snap, err := scanSnapshot(rows)
	if err != nil {
		return nil, err
	}
	if len(snap.Stats) == 0 {
		return nil, storage.ErrNotFound
	}
	return snap, nil
}

// GetLatestByAddress retrieves one address from the most recent snapshot.
func (s *UserStatsStore) GetLatestByAddress(ctx context.Context, address string) (*domain.UserStats, error) {
	query := `
		SELECT address, total_volume, avg_buy_price, avg_sell_price, max_balance
		FROM user_stats
		WHERE address = ? AND computed_at = (SELECT max(computed_at) FROM user_stats)
		LIMIT 1
	`

	var st domain.UserStats
	err := s.conn.QueryRow(ctx, query, address).Scan(
		&st.Address, &st.TotalVolume, &st.AvgBuyPrice, &st.AvgSellPrice, &st.MaxBalance,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query user stats by address: %w", err)
	}
	return &st, nil
}

// scanSnapshot scans rows of a single computed_at into a snapshot.
func scanSnapshot(rows chRows) (*domain.StatsSnapshot, error) {
	snap := &domain.StatsSnapshot{}

	for rows.Next() {
		var st domain.UserStats
		var computedAt uint64

		err := rows.Scan(
			&computedAt, &st.Address,
			&st.TotalVolume, &st.AvgBuyPrice, &st.AvgSellPrice, &st.MaxBalance,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user stats row: %w", err)
		}

		snap.ComputedAt = int64(computedAt)
		snap.Stats = append(snap.Stats, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user stats rows: %w", err)
	}

	return snap, nil
}
