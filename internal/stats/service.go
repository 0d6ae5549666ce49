package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/generator"
	"transfer-stats/internal/observability"
	"transfer-stats/internal/storage"
)

var (
	// ErrTransferSource is returned when the transfer batch cannot be loaded.
	ErrTransferSource = errors.New("transfer source failed")
	// ErrStatsSink is returned when a computed snapshot cannot be persisted.
	ErrStatsSink = errors.New("stats sink failed")
)

// Options for creating Service.
type Options struct {
	// Required
	Transfers storage.TransferStore

	// Optional sinks
	Snapshots storage.UserStatsStore
	Cache     storage.StatsCache

	// Backend labels database metrics, e.g. "clickhouse".
	Backend string

	// Chronological sorts transfers with domain.SortTransfers before
	// aggregation instead of using the store order as given.
	Chronological bool

	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Service loads the ledger, computes statistics and publishes the snapshot.
type Service struct {
	transfers     storage.TransferStore
	snapshots     storage.UserStatsStore
	cache         storage.StatsCache
	backend       string
	chronological bool
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a Service. Nil metrics, logger and clock fall back to
// observability.DefaultMetrics, a no-op logger and time.Now.
func NewService(opts Options) *Service {
	s := &Service{
		transfers:     opts.Transfers,
		snapshots:     opts.Snapshots,
		cache:         opts.Cache,
		backend:       opts.Backend,
		chronological: opts.Chronological,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if s.backend == "" {
		s.backend = "memory"
	}
	if s.metrics == nil {
		s.metrics = observability.DefaultMetrics
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "stats"))
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RunResult is one completed statistics run.
type RunResult struct {
	*Result
	ComputedAt int64 // unix ms
	Duration   time.Duration
}

// Snapshot returns the run as a persistable snapshot.
func (r *RunResult) Snapshot() *domain.StatsSnapshot {
	return &domain.StatsSnapshot{ComputedAt: r.ComputedAt, Stats: r.Stats}
}

// Run loads every transfer, computes statistics and writes the snapshot to
// the configured sinks. Cache failures are logged and do not fail the run.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	start := s.now()

	transfers, err := s.load(ctx)
	if err != nil {
		s.metrics.RecordStatsRun("source_error", s.now().Sub(start))
		return nil, err
	}

	res, err := Compute(transfers)
	if err != nil {
		s.metrics.RecordStatsRun("compute_error", s.now().Sub(start))
		return nil, err
	}

	run := &RunResult{
		Result:     res,
		ComputedAt: start.UnixMilli(),
	}
	if run.ComputedAt <= 0 {
		run.ComputedAt = 1
	}

	if err := s.publish(ctx, run.Snapshot()); err != nil {
		s.metrics.RecordStatsRun("sink_error", s.now().Sub(start))
		return nil, err
	}

	run.Duration = s.now().Sub(start)
	s.metrics.RecordStatsRun("success", run.Duration)
	s.metrics.RecordComputed(res.TransferCount, res.AddressCount, res.SellerOnlyCorrections, res.RaisedToMaxSell, s.now())

	s.logger.Info("stats computed",
		zap.Int("transfers", res.TransferCount),
		zap.Int("addresses", res.AddressCount),
		zap.Int("seller_only_corrections", res.SellerOnlyCorrections),
		zap.Int("raised_to_max_sell", res.RaisedToMaxSell),
		zap.Duration("duration", run.Duration),
	)
	return run, nil
}

// History returns the uncorrected balance trace of address over the current
// ledger, in the same order Run aggregates it. Unknown addresses yield nil.
func (s *Service) History(ctx context.Context, address string) ([]domain.BalanceSample, error) {
	transfers, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	touching := make([]*domain.Transfer, 0)
	for _, t := range transfers {
		if t.AddressFrom == address || t.AddressTo == address {
			touching = append(touching, t)
		}
	}
	return BalanceHistory(touching)[address], nil
}

// Seed fills an empty store with count generated transfers.
// A store that already holds transfers is left untouched and 0 is returned.
func (s *Service) Seed(ctx context.Context, gen generator.Generator, count int) (int, error) {
	existing, err := s.transfers.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count transfers: %w", ErrTransferSource, err)
	}
	if existing > 0 {
		s.logger.Info("store not empty, skipping seed", zap.Int64("transfers", existing))
		return 0, nil
	}

	n, err := generator.Fill(ctx, gen, s.transfers, count, generator.DefaultBatchSize)
	if n > 0 {
		s.metrics.RecordSeeded(s.backend, n)
	}
	if err != nil {
		return n, fmt.Errorf("seed transfers: %w", err)
	}
	s.logger.Info("seeded transfers", zap.Int("count", n))
	return n, nil
}

func (s *Service) load(ctx context.Context) ([]*domain.Transfer, error) {
	start := time.Now()
	transfers, err := s.transfers.GetAll(ctx)
	s.metrics.RecordDBQuery(s.backend, "get_all_transfers", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferSource, err)
	}
	for i, t := range transfers {
		if t == nil {
			return nil, fmt.Errorf("%w: %w at index %d", ErrTransferSource, ErrNilTransfer, i)
		}
	}
	if s.chronological {
		domain.SortTransfers(transfers)
	}
	return transfers, nil
}

func (s *Service) publish(ctx context.Context, snap *domain.StatsSnapshot) error {
	if s.snapshots != nil {
		start := time.Now()
		err := s.snapshots.SaveSnapshot(ctx, snap)
		s.metrics.RecordDBQuery(s.backend, "save_snapshot", time.Since(start).Seconds(), err)
		if err != nil {
			return fmt.Errorf("%w: save snapshot: %w", ErrStatsSink, err)
		}
		s.metrics.SnapshotsSaved.Inc()
	}

	if s.cache != nil {
		if err := s.cache.SaveStats(ctx, snap); err != nil {
			s.metrics.RecordCache("save", "error")
			s.logger.Warn("cache update failed", zap.Error(err))
		} else {
			s.metrics.RecordCache("save", "ok")
		}
	}
	return nil
}
