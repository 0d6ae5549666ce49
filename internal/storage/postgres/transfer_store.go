package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

var transferColumns = []string{"ts", "address_from", "address_to", "amount", "usd_price"}

// TransferStore implements storage.TransferStore using PostgreSQL.
type TransferStore struct {
	pool *Pool
}

// NewTransferStore creates a new TransferStore.
func NewTransferStore(pool *Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// Compile-time interface check
var _ storage.TransferStore = (*TransferStore)(nil)

// validate checks a transfer and the BIGINT range of its timestamp.
func validate(t *domain.Transfer) error {
	if err := storage.ValidateTransfer(t); err != nil {
		return err
	}
	if t.TS > math.MaxInt64 {
		return fmt.Errorf("%w: ts %d exceeds BIGINT range", storage.ErrInvalidInput, t.TS)
	}
	return nil
}

// Insert adds a single transfer.
func (s *TransferStore) Insert(ctx context.Context, t *domain.Transfer) error {
	if err := validate(t); err != nil {
		return err
	}

	query := `
		INSERT INTO transfers (ts, address_from, address_to, amount, usd_price)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query, int64(t.TS), t.AddressFrom, t.AddressTo, t.Amount, t.USDPrice)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// InsertBulk adds multiple transfers with COPY.
// The batch is validated up front so nothing is written on invalid input.
func (s *TransferStore) InsertBulk(ctx context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	for i, t := range transfers {
		if err := validate(t); err != nil {
			return fmt.Errorf("transfer %d: %w", i, err)
		}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"transfers"},
		transferColumns,
		pgx.CopyFromSlice(len(transfers), func(i int) ([]any, error) {
			t := transfers[i]
			return []any{int64(t.TS), t.AddressFrom, t.AddressTo, t.Amount, t.USDPrice}, nil
		}),
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("copy transfers: %w", err)
	}
	return nil
}

// GetAll retrieves every transfer in canonical order.
// COLLATE "C" makes text ordering bytewise, matching domain.TransferLess.
func (s *TransferStore) GetAll(ctx context.Context) ([]*domain.Transfer, error) {
	query := `
		SELECT ts, address_from, address_to, amount, usd_price
		FROM transfers
		ORDER BY ts, address_from COLLATE "C", address_to COLLATE "C", amount, usd_price
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transfer
	for rows.Next() {
		var (
			t  domain.Transfer
			ts int64
		)
		if err := rows.Scan(&ts, &t.AddressFrom, &t.AddressTo, &t.Amount, &t.USDPrice); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.TS = uint64(ts)
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return result, nil
}

// Count returns the number of stored transfers.
func (s *TransferStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transfers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return n, nil
}
