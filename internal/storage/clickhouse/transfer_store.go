package clickhouse

import (
	"context"
	"fmt"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

// TransferStore implements storage.TransferStore using ClickHouse.
type TransferStore struct {
	conn *Conn
}

// NewTransferStore creates a new TransferStore.
func NewTransferStore(conn *Conn) *TransferStore {
	return &TransferStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransferStore = (*TransferStore)(nil)

// Insert adds one transfer.
func (s *TransferStore) Insert(ctx context.Context, t *domain.Transfer) error {
	return s.InsertBulk(ctx, []*domain.Transfer{t})
}

// InsertBulk adds multiple transfers in one batch. The whole batch is
// validated before anything is sent.
func (s *TransferStore) InsertBulk(ctx context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	for _, t := range transfers {
		if err := storage.ValidateTransfer(t); err != nil {
			return err
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transfers (ts, address_from, address_to, amount, usd_price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range transfers {
		if err := batch.Append(t.TS, t.AddressFrom, t.AddressTo, t.Amount, t.USDPrice); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetAll retrieves the full ledger ordered by domain.TransferLess.
func (s *TransferStore) GetAll(ctx context.Context) ([]*domain.Transfer, error) {
	query := `
		SELECT ts, address_from, address_to, amount, usd_price
		FROM transfers
		ORDER BY ts ASC, address_from ASC, address_to ASC, amount ASC, usd_price ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// Count returns the number of stored transfers.
func (s *TransferStore) Count(ctx context.Context) (int64, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM transfers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return int64(count), nil
}

// scanTransfers scans multiple rows.
func scanTransfers(rows chRows) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer

	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(&t.TS, &t.AddressFrom, &t.AddressTo, &t.Amount, &t.USDPrice); err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		transfers = append(transfers, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}

	return transfers, nil
}
