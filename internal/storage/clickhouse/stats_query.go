package clickhouse

import (
	"context"
	"fmt"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

// userStatsQuery aggregates the ledger inside ClickHouse.
//
// Every transfer with a positive amount becomes two legs: a sell leg for the
// sender (leg 0) and a buy leg for the receiver (leg 1). Consequences:
//   - a self-transfer contributes its amount to volume twice;
//   - addresses that only appear in non-positive transfers are omitted;
//   - non-positive amounts never move the running balance.
//
// The running balance is replayed per address in domain.TransferLess order,
// sell leg first, and the funding-gap correction matches the in-process engine.
const userStatsQuery = `
	SELECT
		address,
		sum(amount) AS total_volume,
		if(sumIf(amount, leg = 1) > 0,
			sumIf(amount * usd_price, leg = 1) / sumIf(amount, leg = 1), 0) AS avg_buy_price,
		if(sumIf(amount, leg = 0) > 0,
			sumIf(amount * usd_price, leg = 0) / sumIf(amount, leg = 0), 0) AS avg_sell_price,
		multiIf(
			countIf(leg = 1) = 0, sumIf(amount, leg = 0),
			countIf(leg = 0) = 0, greatest(max(running), 0),
			greatest(max(running), maxIf(amount, leg = 0), 0)
		) AS max_balance
	FROM (
		SELECT
			address,
			leg,
			amount,
			usd_price,
			sum(if(leg = 1, amount, -amount)) OVER (
				PARTITION BY address
				ORDER BY ts, address_from, address_to, amount, usd_price, leg
				ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
			) AS running
		FROM (
			SELECT ts, address_from, address_to, amount, usd_price,
				address_from AS address, toUInt8(0) AS leg
			FROM transfers
			WHERE amount > 0
			UNION ALL
			SELECT ts, address_from, address_to, amount, usd_price,
				address_to AS address, toUInt8(1) AS leg
			FROM transfers
			WHERE amount > 0
		)
	)
	GROUP BY address
	ORDER BY address
`

// Compile-time interface check.
var _ storage.UserStatsQuerier = (*TransferStore)(nil)

// ComputeUserStats aggregates per-address statistics in the database,
// ordered by address.
func (s *TransferStore) ComputeUserStats(ctx context.Context) ([]*domain.UserStats, error) {
	rows, err := s.conn.Query(ctx, userStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("query user stats: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.UserStats, 0)
	for rows.Next() {
		var st domain.UserStats
		if err := rows.Scan(&st.Address, &st.TotalVolume, &st.AvgBuyPrice, &st.AvgSellPrice, &st.MaxBalance); err != nil {
			return nil, fmt.Errorf("scan user stats row: %w", err)
		}
		result = append(result, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user stats rows: %w", err)
	}

	return result, nil
}
