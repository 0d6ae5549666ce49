package storage

import (
	"context"

	"transfer-stats/internal/domain"
)

// TransferStore provides access to transfers storage.
// The table is an append-only ledger; transfers have no identity and
// duplicates are legal.
type TransferStore interface {
	// Insert adds one transfer. Returns ErrInvalidInput for nil or unaddressed transfers.
	Insert(ctx context.Context, t *domain.Transfer) error

	// InsertBulk adds multiple transfers. Validates the whole batch before writing.
	InsertBulk(ctx context.Context, transfers []*domain.Transfer) error

	// GetAll retrieves the full ledger ordered by domain.TransferLess.
	GetAll(ctx context.Context) ([]*domain.Transfer, error)

	// Count returns the number of stored transfers.
	Count(ctx context.Context) (int64, error)
}

// UserStatsStore provides access to user_stats snapshots.
type UserStatsStore interface {
	// SaveSnapshot stores all stats of one run under its ComputedAt.
	SaveSnapshot(ctx context.Context, snap *domain.StatsSnapshot) error

	// GetLatest retrieves the most recent snapshot, stats ordered by address.
	// Returns ErrNotFound if no snapshot exists.
	GetLatest(ctx context.Context) (*domain.StatsSnapshot, error)

	// GetLatestByAddress retrieves one address from the most recent snapshot.
	// Returns ErrNotFound if absent.
	GetLatestByAddress(ctx context.Context, address string) (*domain.UserStats, error)
}

// UserStatsQuerier computes statistics inside the storage engine instead of
// replaying the ledger in process. Results are ordered by address.
type UserStatsQuerier interface {
	ComputeUserStats(ctx context.Context) ([]*domain.UserStats, error)
}

// TransferSink accepts batches of transfers for the seeding workflow.
// TransferStore implementations satisfy it through InsertBulk; queue sinks
// publish instead of storing.
type TransferSink interface {
	InsertBulk(ctx context.Context, transfers []*domain.Transfer) error
}

// StatsCache is a read-through cache of the latest per-address statistics.
type StatsCache interface {
	// SaveStats writes every stat of the snapshot.
	SaveStats(ctx context.Context, snap *domain.StatsSnapshot) error

	// GetStats returns nil, nil on a miss.
	GetStats(ctx context.Context, address string) (*domain.UserStats, error)

	// ComputedAt returns the ComputedAt of the last cached snapshot, or 0 if none.
	ComputedAt(ctx context.Context) (int64, error)
}
