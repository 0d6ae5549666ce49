package memory

import (
	"context"
	"sort"
	"sync"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

// TransferStore is an in-memory implementation of storage.TransferStore.
type TransferStore struct {
	mu   sync.RWMutex
	data []*domain.Transfer // insertion order
}

// NewTransferStore creates a new in-memory transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{}
}

// Insert adds one transfer.
func (s *TransferStore) Insert(_ context.Context, t *domain.Transfer) error {
	if err := storage.ValidateTransfer(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *t
	s.data = append(s.data, &copy)
	return nil
}

// InsertBulk adds multiple transfers atomically. Fails entire batch on any invalid transfer.
func (s *TransferStore) InsertBulk(_ context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	// First pass: validate everything
	for _, t := range transfers {
		if err := storage.ValidateTransfer(t); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Second pass: insert all
	for _, t := range transfers {
		copy := *t
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetAll retrieves all transfers ordered by domain.TransferLess.
func (s *TransferStore) GetAll(_ context.Context) ([]*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transfer, 0, len(s.data))
	for _, t := range s.data {
		copy := *t
		result = append(result, &copy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return domain.TransferLess(result[i], result[j])
	})

	return result, nil
}

// Count returns the number of stored transfers.
func (s *TransferStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.data)), nil
}

var _ storage.TransferStore = (*TransferStore)(nil)
