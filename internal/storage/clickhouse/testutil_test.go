package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	runInlineMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runInlineMigrations mirrors the embedded ClickHouse migrations.
// The migrations package imports this one, so tests cannot use it directly.
func runInlineMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	// 001_transfers.sql
	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transfers (
			ts              UInt64,
			address_from    String,
			address_to      String,
			amount          Float64,
			usd_price       Float64
		) ENGINE = MergeTree()
		ORDER BY (ts, address_from, address_to)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)

	// 002_user_stats.sql
	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_stats (
			computed_at     UInt64,
			address         String,
			total_volume    Float64,
			avg_buy_price   Float64,
			avg_sell_price  Float64,
			max_balance     Float64
		) ENGINE = MergeTree()
		ORDER BY (computed_at, address)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)
}
