package storage

import (
	"fmt"

	"transfer-stats/internal/domain"
)

// ValidateTransfer checks the fields every store requires.
// Amount and price are stored as given; the ledger accepts zero and negative values.
func ValidateTransfer(t *domain.Transfer) error {
	if t == nil {
		return fmt.Errorf("%w: nil transfer", ErrInvalidInput)
	}
	if t.AddressFrom == "" || t.AddressTo == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidInput)
	}
	return nil
}

// ValidateSnapshot checks a stats snapshot before it is stored.
func ValidateSnapshot(snap *domain.StatsSnapshot) error {
	if snap == nil || snap.ComputedAt <= 0 {
		return fmt.Errorf("%w: snapshot without computed_at", ErrInvalidInput)
	}
	for _, s := range snap.Stats {
		if s == nil || s.Address == "" {
			return fmt.Errorf("%w: stats without address", ErrInvalidInput)
		}
	}
	return nil
}
