// Package server exposes computed statistics over HTTP and WebSocket and
// recomputes them on a schedule.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/observability"
	"transfer-stats/internal/stats"
	"transfer-stats/internal/storage"
)

// ErrRecomputeRunning is returned by Recompute when a run is already in progress.
var ErrRecomputeRunning = errors.New("recompute already running")

// Options for creating Server.
type Options struct {
	Service *stats.Service     // required
	Cache   storage.StatsCache // optional read-through cache for /stats/{address}

	// RecomputeEvery is the scheduler interval; zero runs once at start only.
	RecomputeEvery time.Duration

	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Server holds the latest statistics run and serves it.
type Server struct {
	service        *stats.Service
	cache          storage.StatsCache
	recomputeEvery time.Duration
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time
	hub            *Hub
	started        time.Time

	mu        sync.RWMutex
	latest    *stats.RunResult
	sorted    []*domain.UserStats // latest stats by address ASC
	byAddress map[string]*domain.UserStats
	lastRun   time.Time
	lastError string
	runs      int
	failures  int
	running   bool
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		service:        opts.Service,
		cache:          opts.Cache,
		recomputeEvery: opts.RecomputeEvery,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if s.metrics == nil {
		s.metrics = observability.DefaultMetrics
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "server"))
	if s.now == nil {
		s.now = time.Now
	}
	s.started = s.now()
	s.hub = NewHub(s.logger, s.metrics.WebSocketClients, s.initialMessage)
	return s
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// snapshotMessage is pushed to WebSocket clients after every successful run.
type snapshotMessage struct {
	Type          string              `json:"type"`
	ComputedAt    int64               `json:"computed_at"`
	TransferCount int                 `json:"transfer_count"`
	AddressCount  int                 `json:"address_count"`
	Stats         []*domain.UserStats `json:"stats"`
}

func newSnapshotMessage(run *stats.RunResult, sorted []*domain.UserStats) snapshotMessage {
	return snapshotMessage{
		Type:          "snapshot",
		ComputedAt:    run.ComputedAt,
		TransferCount: run.TransferCount,
		AddressCount:  run.AddressCount,
		Stats:         sorted,
	}
}

// initialMessage is called by the hub with its lock held.
func (s *Server) initialMessage() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	msg, err := json.Marshal(newSnapshotMessage(s.latest, s.sorted))
	if err != nil {
		return nil
	}
	return msg
}

// Recompute runs the statistics service once, stores the result and
// broadcasts it. Concurrent calls return ErrRecomputeRunning.
func (s *Server) Recompute(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRecomputeRunning
	}
	s.running = true
	s.mu.Unlock()

	run, err := s.service.Run(ctx)

	s.mu.Lock()
	s.running = false
	s.lastRun = s.now()
	s.runs++
	if err != nil {
		s.failures++
		s.lastError = err.Error()
		s.mu.Unlock()
		return err
	}
	sorted := make([]*domain.UserStats, len(run.Stats))
	copy(sorted, run.Stats)
	domain.SortUserStats(sorted)
	byAddress := make(map[string]*domain.UserStats, len(sorted))
	for _, st := range sorted {
		byAddress[st.Address] = st
	}
	s.latest = run
	s.sorted = sorted
	s.byAddress = byAddress
	s.lastError = ""
	s.mu.Unlock()

	s.hub.Broadcast(newSnapshotMessage(run, sorted))
	return nil
}

// RunScheduler recomputes immediately and then every RecomputeEvery until
// ctx is cancelled. Failed runs are logged; the previous result keeps serving.
func (s *Server) RunScheduler(ctx context.Context) error {
	s.logger.Info("starting recompute scheduler", zap.Duration("interval", s.recomputeEvery))

	s.recomputeLogged(ctx)
	if s.recomputeEvery <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.recomputeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.recomputeLogged(ctx)
		}
	}
}

func (s *Server) recomputeLogged(ctx context.Context) {
	if err := s.Recompute(ctx); err != nil {
		switch {
		case errors.Is(err, ErrRecomputeRunning):
			s.logger.Info("recompute already running, skipping")
		case ctx.Err() != nil:
		default:
			s.logger.Error("recompute failed", zap.Error(err))
		}
	}
}

// ListenAndServe serves the router on addr until ctx is cancelled, then
// shuts down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
