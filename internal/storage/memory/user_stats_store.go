package memory

import (
	"context"
	"sync"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

// UserStatsStore is an in-memory implementation of storage.UserStatsStore.
// Only snapshots newer than the current latest replace it.
type UserStatsStore struct {
	mu        sync.RWMutex
	latest    *domain.StatsSnapshot
	byAddress map[string]*domain.UserStats
}

// NewUserStatsStore creates a new in-memory user stats store.
func NewUserStatsStore() *UserStatsStore {
	return &UserStatsStore{
		byAddress: make(map[string]*domain.UserStats),
	}
}

// SaveSnapshot stores a snapshot. Older snapshots are accepted but do not
// replace a newer latest. An empty snapshot stores nothing.
func (s *UserStatsStore) SaveSnapshot(_ context.Context, snap *domain.StatsSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}
	if len(snap.Stats) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil && s.latest.ComputedAt > snap.ComputedAt {
		return nil
	}

	stored := &domain.StatsSnapshot{
		ComputedAt: snap.ComputedAt,
		Stats:      make([]*domain.UserStats, 0, len(snap.Stats)),
	}
	byAddress := make(map[string]*domain.UserStats, len(snap.Stats))
	for _, st := range snap.Stats {
		copy := *st
		stored.Stats = append(stored.Stats, &copy)
		byAddress[st.Address] = &copy
	}
	domain.SortUserStats(stored.Stats)

	s.latest = stored
	s.byAddress = byAddress
	return nil
}

// GetLatest retrieves the most recent snapshot.
func (s *UserStatsStore) GetLatest(_ context.Context) (*domain.StatsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return nil, storage.ErrNotFound
	}

	result := &domain.StatsSnapshot{
		ComputedAt: s.latest.ComputedAt,
		Stats:      make([]*domain.UserStats, 0, len(s.latest.Stats)),
	}
	for _, st := range s.latest.Stats {
		copy := *st
		result.Stats = append(result.Stats, &copy)
	}
	return result, nil
}

// GetLatestByAddress retrieves one address from the most recent snapshot.
func (s *UserStatsStore) GetLatestByAddress(_ context.Context, address string) (*domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.byAddress[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *st
	return &copy, nil
}

var _ storage.UserStatsStore = (*UserStatsStore)(nil)
