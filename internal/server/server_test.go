package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/observability"
	"transfer-stats/internal/stats"
	"transfer-stats/internal/storage/memory"
)

type stubCache struct {
	entries    map[string]*domain.UserStats
	computedAt int64
	err        error
}

func (c *stubCache) SaveStats(context.Context, *domain.StatsSnapshot) error { return nil }

func (c *stubCache) GetStats(_ context.Context, address string) (*domain.UserStats, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.entries[address], nil
}

func (c *stubCache) ComputedAt(context.Context) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.computedAt, nil
}

type testEnv struct {
	server  *Server
	store   *memory.TransferStore
	metrics *observability.Metrics
	http    *httptest.Server
}

func newTestEnv(t *testing.T, cache *stubCache) *testEnv {
	t.Helper()

	store := memory.NewTransferStore()
	require.NoError(t, store.InsertBulk(context.Background(), []*domain.Transfer{
		{TS: 1, AddressFrom: "A", AddressTo: "B", Amount: 10, USDPrice: 1},
		{TS: 2, AddressFrom: "B", AddressTo: "C", Amount: 5, USDPrice: 2},
	}))

	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	svc := stats.NewService(stats.Options{Transfers: store, Metrics: metrics})

	opts := Options{Service: svc, Metrics: metrics}
	if cache != nil {
		opts.Cache = cache
	}
	srv := New(opts)

	hs := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Hub().Close()
		hs.Close()
	})
	return &testEnv{server: srv, store: store, metrics: metrics, http: hs}
}

func (e *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStats_BeforeFirstRun(t *testing.T) {
	env := newTestEnv(t, nil)

	var body errorResponse
	assert.Equal(t, http.StatusServiceUnavailable, env.get(t, "/stats", &body))
	assert.NotEmpty(t, body.Error)

	var status StatusResponse
	assert.Equal(t, http.StatusOK, env.get(t, "/status", &status))
	assert.Equal(t, "starting", status.Status)
}

func TestStats_List(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.server.Recompute(context.Background()))

	var list StatsListResponse
	require.Equal(t, http.StatusOK, env.get(t, "/stats", &list))
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Stats, 3)
	assert.Equal(t, "A", list.Stats[0].Address)
	assert.Equal(t, "C", list.Stats[2].Address)

	var limited StatsListResponse
	require.Equal(t, http.StatusOK, env.get(t, "/stats?limit=1", &limited))
	assert.Equal(t, 3, limited.Total)
	assert.Len(t, limited.Stats, 1)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/stats?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/stats?limit=-1", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/stats", "OK")))
}

func TestStats_ByAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.server.Recompute(context.Background()))

	var b domain.UserStats
	require.Equal(t, http.StatusOK, env.get(t, "/stats/B", &b))
	assert.Equal(t, domain.UserStats{Address: "B", TotalVolume: 15, AvgBuyPrice: 1, AvgSellPrice: 2, MaxBalance: 10}, b)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/stats/nobody", nil))
}

func TestStats_ByAddressFromCache(t *testing.T) {
	cache := &stubCache{entries: map[string]*domain.UserStats{
		"Z": {Address: "Z", TotalVolume: 99},
	}}
	env := newTestEnv(t, cache)

	// Served from cache before any local run.
	var z domain.UserStats
	require.Equal(t, http.StatusOK, env.get(t, "/stats/Z", &z))
	assert.Equal(t, 99.0, z.TotalVolume)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CacheRequests.WithLabelValues("get", "hit")))

	// Miss falls back to the in-memory result.
	require.NoError(t, env.server.Recompute(context.Background()))
	require.Equal(t, http.StatusOK, env.get(t, "/stats/A", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CacheRequests.WithLabelValues("get", "miss")))
}

func TestStats_StaleCacheSkipped(t *testing.T) {
	cache := &stubCache{entries: map[string]*domain.UserStats{
		"A": {Address: "A", TotalVolume: 99},
	}}
	env := newTestEnv(t, cache)
	require.NoError(t, env.server.Recompute(context.Background()))

	var a domain.UserStats
	require.Equal(t, http.StatusOK, env.get(t, "/stats/A", &a))
	assert.Equal(t, 10.0, a.TotalVolume)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CacheRequests.WithLabelValues("get", "stale")))

	var status StatusResponse
	require.Equal(t, http.StatusOK, env.get(t, "/status", &status))
	assert.Zero(t, status.CacheComputedAt)
	assert.True(t, status.CacheStale)

	// A cache written by the same or a newer run is served.
	cache.computedAt = status.ComputedAt
	require.Equal(t, http.StatusOK, env.get(t, "/stats/A", &a))
	assert.Equal(t, 99.0, a.TotalVolume)

	require.Equal(t, http.StatusOK, env.get(t, "/status", &status))
	assert.Equal(t, status.ComputedAt, status.CacheComputedAt)
	assert.False(t, status.CacheStale)
}

func TestStats_NonFiniteValues(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.InsertBulk(context.Background(), []*domain.Transfer{
		{TS: 3, AddressFrom: "X", AddressTo: "Y", Amount: math.MaxFloat64, USDPrice: 1},
		{TS: 4, AddressFrom: "X", AddressTo: "Y", Amount: math.MaxFloat64, USDPrice: 1},
		{TS: 5, AddressFrom: "P", AddressTo: "Q", Amount: 1, USDPrice: 1},
	}))
	require.NoError(t, env.server.Recompute(context.Background()))

	var list StatsListResponse
	require.Equal(t, http.StatusOK, env.get(t, "/stats", &list))
	assert.Equal(t, 7, list.Total)

	var y domain.UserStats
	require.Equal(t, http.StatusOK, env.get(t, "/stats/Y", &y))
	assert.True(t, math.IsInf(y.TotalVolume, 1))
	assert.True(t, math.IsInf(y.MaxBalance, 1))
	assert.True(t, math.IsNaN(y.AvgBuyPrice))

	var p domain.UserStats
	require.Equal(t, http.StatusOK, env.get(t, "/stats/P", &p))
	assert.Equal(t, 1.0, p.TotalVolume)
}

func TestStats_CacheErrorFallsBack(t *testing.T) {
	env := newTestEnv(t, &stubCache{err: errors.New("redis down")})
	require.NoError(t, env.server.Recompute(context.Background()))

	assert.Equal(t, http.StatusOK, env.get(t, "/stats/A", nil))
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.server.Recompute(context.Background()))

	var a HistoryResponse
	require.Equal(t, http.StatusOK, env.get(t, "/history/A", &a))
	assert.Equal(t, []domain.BalanceSample{{TS: 1, Balance: -10}}, a.Samples)
	assert.Equal(t, domain.JSONFloat(0), a.ReplayPeak)
	require.NotNil(t, a.MaxBalance)
	assert.Equal(t, domain.JSONFloat(10), *a.MaxBalance)
	assert.False(t, a.Corrected)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/history/nobody", nil))
}

func TestStatus_AfterRun(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.server.Recompute(context.Background()))

	var status StatusResponse
	require.Equal(t, http.StatusOK, env.get(t, "/status", &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 2, status.TransferCount)
	assert.Equal(t, 3, status.AddressCount)
	assert.Equal(t, 1, status.Runs)
	assert.Zero(t, status.Failures)
}

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) snapshotMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg snapshotMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_BroadcastOnRecompute(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env)

	require.Eventually(t, func() bool { return env.server.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, env.server.Recompute(context.Background()))

	msg := readSnapshot(t, conn)
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, 2, msg.TransferCount)
	require.Len(t, msg.Stats, 3)
	assert.Equal(t, "A", msg.Stats[0].Address)
}

func TestWebSocket_InitialSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.server.Recompute(context.Background()))

	conn := dialWS(t, env)
	msg := readSnapshot(t, conn)
	assert.Equal(t, 3, msg.AddressCount)
}

func TestRunScheduler(t *testing.T) {
	store := memory.NewTransferStore()
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	srv := New(Options{
		Service:        stats.NewService(stats.Options{Transfers: store, Metrics: metrics}),
		Metrics:        metrics,
		RecomputeEvery: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunScheduler(ctx) }()

	require.Eventually(t, func() bool {
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		return srv.runs >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}
