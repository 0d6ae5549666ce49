package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/observability"
	"transfer-stats/internal/stats"
)

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// WebSocket outside the instrumented group so the connection is not wrapped.
	r.Get("/ws", s.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.instrument)
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", observability.Handler())

		r.Group(func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Get("/status", s.handleStatus)
			r.Get("/stats", s.handleListStats)
			r.Get("/stats/{address}", s.handleGetStats)
			r.Get("/history/{address}", s.handleHistory)
		})
	})
	return r
}

// instrument records request count and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(route, status, time.Since(start))
	})
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status          string    `json:"status"`
	Uptime          string    `json:"uptime"`
	LastRun         time.Time `json:"last_run,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	ComputedAt      int64     `json:"computed_at,omitempty"`
	CacheComputedAt int64     `json:"cache_computed_at,omitempty"`
	CacheStale      bool      `json:"cache_stale,omitempty"`
	TransferCount   int       `json:"transfer_count"`
	AddressCount    int       `json:"address_count"`
	Runs            int       `json:"runs"`
	Failures        int       `json:"failures"`
	Running         bool      `json:"running"`
	WSClients       int       `json:"ws_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := StatusResponse{
		Status:    "starting",
		Uptime:    s.now().Sub(s.started).Round(time.Second).String(),
		LastRun:   s.lastRun,
		LastError: s.lastError,
		Runs:      s.runs,
		Failures:  s.failures,
		Running:   s.running,
	}
	if s.latest != nil {
		resp.Status = "ok"
		resp.ComputedAt = s.latest.ComputedAt
		resp.TransferCount = s.latest.TransferCount
		resp.AddressCount = s.latest.AddressCount
	}
	if resp.LastError != "" {
		resp.Status = "degraded"
	}
	s.mu.RUnlock()

	if s.cache != nil {
		at, err := s.cache.ComputedAt(r.Context())
		if err != nil {
			s.logger.Warn("cache freshness read failed", zap.Error(err))
		} else {
			resp.CacheComputedAt = at
			resp.CacheStale = s.cacheStale(at)
		}
	}

	resp.WSClients = s.hub.Clients()
	render.JSON(w, r, resp)
}

// cacheStale reports whether the cache holds an older snapshot than the
// last successful run. Before the first run every cached entry is served.
func (s *Server) cacheStale(cachedAt int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest != nil && cachedAt < s.latest.ComputedAt
}

// StatsListResponse is the JSON response for /stats.
type StatsListResponse struct {
	ComputedAt int64               `json:"computed_at"`
	Total      int                 `json:"total"`
	Stats      []*domain.UserStats `json:"stats"`
}

func (s *Server) handleListStats(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.renderError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	s.mu.RLock()
	latest, sorted := s.latest, s.sorted
	s.mu.RUnlock()

	if latest == nil {
		s.renderError(w, r, http.StatusServiceUnavailable, "statistics not computed yet")
		return
	}

	rows := sorted
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	render.JSON(w, r, StatsListResponse{
		ComputedAt: latest.ComputedAt,
		Total:      len(sorted),
		Stats:      rows,
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if s.cache != nil {
		cached, err := s.cache.GetStats(r.Context(), address)
		switch {
		case err != nil:
			s.metrics.RecordCache("get", "error")
			s.logger.Warn("cache read failed", zap.String("address", address), zap.Error(err))
		case cached != nil:
			at, err := s.cache.ComputedAt(r.Context())
			if err != nil || s.cacheStale(at) {
				s.metrics.RecordCache("get", "stale")
				break
			}
			s.metrics.RecordCache("get", "hit")
			render.JSON(w, r, cached)
			return
		default:
			s.metrics.RecordCache("get", "miss")
		}
	}

	s.mu.RLock()
	st, ok := s.byAddress[address]
	s.mu.RUnlock()

	if !ok {
		s.renderError(w, r, http.StatusNotFound, "address not found")
		return
	}
	render.JSON(w, r, st)
}

// HistoryResponse is the JSON response for /history/{address}.
// The trace and ReplayPeak are uncorrected; MaxBalance is the reported statistic.
type HistoryResponse struct {
	Address    string                 `json:"address"`
	Samples    []domain.BalanceSample `json:"samples"`
	ReplayPeak domain.JSONFloat       `json:"replay_peak"`
	MaxBalance *domain.JSONFloat      `json:"max_balance,omitempty"`
	Corrected  bool                   `json:"corrected"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	samples, err := s.service.History(r.Context(), address)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, stats.ErrTransferSource) {
			status = http.StatusBadGateway
		}
		s.logger.Error("load history", zap.String("address", address), zap.Error(err))
		s.renderError(w, r, status, "failed to load transfers")
		return
	}
	if len(samples) == 0 {
		s.renderError(w, r, http.StatusNotFound, "address not found")
		return
	}

	resp := HistoryResponse{
		Address:    address,
		Samples:    samples,
		ReplayPeak: domain.JSONFloat(stats.ReplayPeak(samples)),
	}
	s.mu.RLock()
	if st, ok := s.byAddress[address]; ok {
		maxBalance := domain.JSONFloat(st.MaxBalance)
		resp.MaxBalance = &maxBalance
	}
	s.mu.RUnlock()

	render.JSON(w, r, resp)
}
