package clickhouse

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/stats"
	"transfer-stats/internal/storage"
)

func TestTransferStore_InsertAndGetAll(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	transfer := &domain.Transfer{
		TS:          1,
		AddressFrom: "A",
		AddressTo:   "B",
		Amount:      42.0,
		USDPrice:    1.5,
	}
	require.NoError(t, store.Insert(ctx, transfer))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *transfer, *got[0])
}

func TestTransferStore_RoundTripExtremes(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(conn)
	ctx := context.Background()

	transfers := []*domain.Transfer{
		{TS: math.MaxUint64, AddressFrom: "X", AddressTo: "Y", Amount: math.MaxFloat64, USDPrice: math.MaxFloat64},
		{TS: 0, AddressFrom: "Z", AddressTo: "Z", Amount: 0, USDPrice: -1},
		{TS: 7, AddressFrom: "A", AddressTo: "B", Amount: -5.25, USDPrice: 0.1},
	}
	require.NoError(t, store.InsertBulk(ctx, transfers))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ordered by ts ASC.
	assert.Equal(t, *transfers[1], *got[0])
	assert.Equal(t, *transfers[2], *got[1])
	assert.Equal(t, *transfers[0], *got[2])
}

func TestTransferStore_Count(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(conn)
	ctx := context.Background()

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	tr := &domain.Transfer{TS: 1, AddressFrom: "A", AddressTo: "B", Amount: 1, USDPrice: 1}
	require.NoError(t, store.InsertBulk(ctx, []*domain.Transfer{tr, tr, tr}))

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestTransferStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.Transfer{
		{TS: 1, AddressFrom: "A", AddressTo: "B", Amount: 1},
		{TS: 2, AddressFrom: "", AddressTo: "B", Amount: 1},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// Stats computed from the stored ledger match the in-memory computation.
func TestTransferStore_StatsFromStoredLedger(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.Transfer{
		{TS: 2, AddressFrom: "B", AddressTo: "C", Amount: 5, USDPrice: 3},
		{TS: 1, AddressFrom: "A", AddressTo: "B", Amount: 10, USDPrice: 2},
	}))

	transfers, err := store.GetAll(ctx)
	require.NoError(t, err)

	result, err := stats.ComputeUserStats(transfers)
	require.NoError(t, err)
	require.Len(t, result, 3)

	domain.SortUserStats(result)
	assert.Equal(t, domain.UserStats{Address: "A", TotalVolume: 10, AvgSellPrice: 2, MaxBalance: 10}, *result[0])
	assert.Equal(t, domain.UserStats{Address: "B", TotalVolume: 15, AvgBuyPrice: 2, AvgSellPrice: 3, MaxBalance: 10}, *result[1])
	assert.Equal(t, domain.UserStats{Address: "C", TotalVolume: 5, AvgBuyPrice: 3, MaxBalance: 5}, *result[2])
}
