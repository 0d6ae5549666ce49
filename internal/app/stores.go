// Package app wires configured backends for the command binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"transfer-stats/internal/cache"
	"transfer-stats/internal/config"
	"transfer-stats/internal/storage"
	chstore "transfer-stats/internal/storage/clickhouse"
	"transfer-stats/internal/storage/memory"
	"transfer-stats/internal/storage/migrations"
	pgstore "transfer-stats/internal/storage/postgres"
)

// Stores holds the opened storage implementations.
type Stores struct {
	Transfers storage.TransferStore
	Snapshots storage.UserStatsStore
	Backend   string

	closers []func()
}

// Close releases every connection, last opened first.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores connects the configured backend and applies its migrations.
//
// memory: both stores in process.
// clickhouse: transfers and snapshots in ClickHouse.
// postgres: transfers in PostgreSQL; snapshots in ClickHouse when a DSN is
// configured, otherwise in memory.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stores{Backend: cfg.Backend}

	switch cfg.Backend {
	case config.BackendMemory:
		s.Transfers = memory.NewTransferStore()
		s.Snapshots = memory.NewUserStatsStore()

	case config.BackendClickHouse:
		conn, err := openClickHouse(ctx, cfg.ClickHouseDSN, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.Transfers = chstore.NewTransferStore(conn)
		s.Snapshots = chstore.NewUserStatsStore(conn)

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.Transfers = pgstore.NewTransferStore(pool)

		if cfg.ClickHouseDSN != "" {
			conn, err := openClickHouse(ctx, cfg.ClickHouseDSN, logger)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.closers = append(s.closers, func() { conn.Close() })
			s.Snapshots = chstore.NewUserStatsStore(conn)
		} else {
			s.Snapshots = memory.NewUserStatsStore()
		}

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	logger.Info("storage opened", zap.String("backend", cfg.Backend))
	return s, nil
}

func openClickHouse(ctx context.Context, dsn string, logger *zap.Logger) (*chstore.Conn, error) {
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return conn, nil
}

// OpenCache connects the Redis stats cache. An empty address returns nil, nil.
func OpenCache(ctx context.Context, cfg config.RedisConfig) (*cache.RedisStatsCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	c, err := cache.NewRedisStatsCache(ctx, cfg.Addr, cfg.Password, cfg.DB, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return c, nil
}
