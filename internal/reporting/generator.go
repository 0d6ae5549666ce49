package reporting

import (
	"context"
	"fmt"
	"time"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/stats"
	"transfer-stats/internal/storage"
)

// Generator produces reports from runs or stored snapshots.
type Generator struct {
	snapshots storage.UserStatsStore
	transfers storage.TransferStore
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. Either store may be nil when
// only FromRun is used.
func NewGenerator(snapshots storage.UserStatsStore, transfers storage.TransferStore) *Generator {
	return &Generator{
		snapshots: snapshots,
		transfers: transfers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// FromRun builds a report from a completed run.
func (g *Generator) FromRun(run *stats.RunResult, chronological bool) *Report {
	return &Report{
		GeneratedAt:   g.now(),
		ComputedAt:    run.ComputedAt,
		Chronological: chronological,
		Engine:        EngineInProcess,
		Summary: Summary{
			TransferCount: run.TransferCount,
			AddressCount:  run.AddressCount,
			TotalVolume:   totalVolume(run.Stats),
		},
		Corrections: &Corrections{
			SellerOnly:      run.SellerOnlyCorrections,
			RaisedToMaxSell: run.RaisedToMaxSell,
		},
		Rows: sortedCopy(run.Stats),
	}
}

// Generate builds a report from the latest stored snapshot.
// Returns storage.ErrNotFound if no snapshot exists.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	if g.snapshots == nil {
		return nil, fmt.Errorf("generate report: no snapshot store")
	}
	snap, err := g.snapshots.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	transferCount, err := g.transferCount(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt: g.now(),
		ComputedAt:  snap.ComputedAt,
		Engine:      EngineInProcess,
		Summary: Summary{
			TransferCount: transferCount,
			AddressCount:  len(snap.Stats),
			TotalVolume:   totalVolume(snap.Stats),
		},
		Rows: sortedCopy(snap.Stats),
	}, nil
}

// FromQuery builds a report from statistics aggregated inside ClickHouse.
// Nothing is persisted; ComputedAt is the generation time.
func (g *Generator) FromQuery(ctx context.Context, q storage.UserStatsQuerier) (*Report, error) {
	rows, err := q.ComputeUserStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute user stats in database: %w", err)
	}

	transferCount, err := g.transferCount(ctx)
	if err != nil {
		return nil, err
	}

	now := g.now()
	return &Report{
		GeneratedAt:   now,
		ComputedAt:    now.UnixMilli(),
		Chronological: true,
		Engine:        EngineClickHouse,
		Summary: Summary{
			TransferCount: transferCount,
			AddressCount:  len(rows),
			TotalVolume:   totalVolume(rows),
		},
		Rows: sortedCopy(rows),
	}, nil
}

// transferCount returns -1 when no transfer store is configured.
func (g *Generator) transferCount(ctx context.Context) (int, error) {
	if g.transfers == nil {
		return -1, nil
	}
	n, err := g.transfers.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return int(n), nil
}

func totalVolume(rows []*domain.UserStats) float64 {
	total := 0.0
	for _, s := range rows {
		total += s.TotalVolume
	}
	return total
}

func sortedCopy(rows []*domain.UserStats) []*domain.UserStats {
	out := make([]*domain.UserStats, len(rows))
	copy(out, rows)
	domain.SortUserStats(out)
	return out
}
