package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/stats"
)

func TestTransferStore_ComputeUserStats(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(conn)
	ctx := context.Background()

	reset := func(t *testing.T, transfers ...*domain.Transfer) {
		t.Helper()
		require.NoError(t, conn.Exec(ctx, `TRUNCATE TABLE transfers`))
		require.NoError(t, store.InsertBulk(ctx, transfers))
	}

	t.Run("empty ledger", func(t *testing.T) {
		reset(t)

		got, err := store.ComputeUserStats(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("single transfer", func(t *testing.T) {
		reset(t, &domain.Transfer{TS: 1, AddressFrom: "A", AddressTo: "B", Amount: 10, USDPrice: 2})

		got, err := store.ComputeUserStats(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, domain.UserStats{Address: "A", TotalVolume: 10, AvgSellPrice: 2, MaxBalance: 10}, *got[0])
		assert.Equal(t, domain.UserStats{Address: "B", TotalVolume: 10, AvgBuyPrice: 2, MaxBalance: 10}, *got[1])
	})

	t.Run("self transfer counts both legs", func(t *testing.T) {
		reset(t, &domain.Transfer{TS: 1, AddressFrom: "A", AddressTo: "A", Amount: 100, USDPrice: 1})

		got, err := store.ComputeUserStats(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.UserStats{Address: "A", TotalVolume: 200, AvgBuyPrice: 1, AvgSellPrice: 1, MaxBalance: 100}, *got[0])

		// The in-process engine counts the same transfer once.
		inProcess, err := stats.ComputeUserStats([]*domain.Transfer{
			{TS: 1, AddressFrom: "A", AddressTo: "A", Amount: 100, USDPrice: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, 100.0, inProcess[0].TotalVolume)
	})

	t.Run("non-positive amounts are ignored", func(t *testing.T) {
		reset(t,
			&domain.Transfer{TS: 1, AddressFrom: "X", AddressTo: "Y", Amount: 0, USDPrice: 5},
			&domain.Transfer{TS: 2, AddressFrom: "Y", AddressTo: "X", Amount: -3, USDPrice: 5},
			&domain.Transfer{TS: 3, AddressFrom: "A", AddressTo: "X", Amount: 4, USDPrice: 1},
		)

		got, err := store.ComputeUserStats(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, domain.UserStats{Address: "A", TotalVolume: 4, AvgSellPrice: 1, MaxBalance: 4}, *got[0])
		assert.Equal(t, domain.UserStats{Address: "X", TotalVolume: 4, AvgBuyPrice: 1, MaxBalance: 4}, *got[1])
	})

	t.Run("agrees with in-process engine on positive ledgers", func(t *testing.T) {
		transfers := []*domain.Transfer{
			{TS: 1, AddressFrom: "A", AddressTo: "B", Amount: 10, USDPrice: 2},
			{TS: 2, AddressFrom: "B", AddressTo: "C", Amount: 5, USDPrice: 3},
			{TS: 3, AddressFrom: "C", AddressTo: "B", Amount: 1, USDPrice: 4},
			{TS: 4, AddressFrom: "B", AddressTo: "D", Amount: 20, USDPrice: 1},
		}
		reset(t, transfers...)

		got, err := store.ComputeUserStats(ctx)
		require.NoError(t, err)

		want, err := stats.ComputeUserStats(transfers)
		require.NoError(t, err)
		domain.SortUserStats(want)

		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Address, got[i].Address)
			assert.InDelta(t, want[i].TotalVolume, got[i].TotalVolume, 1e-9, want[i].Address)
			assert.InDelta(t, want[i].AvgBuyPrice, got[i].AvgBuyPrice, 1e-9, want[i].Address)
			assert.InDelta(t, want[i].AvgSellPrice, got[i].AvgSellPrice, 1e-9, want[i].Address)
			assert.InDelta(t, want[i].MaxBalance, got[i].MaxBalance, 1e-9, want[i].Address)
		}
	})
}
