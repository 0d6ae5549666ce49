package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/stats"
	"transfer-stats/internal/storage"
)

var (
	// ErrNoSnapshot is returned when nothing has been persisted yet.
	ErrNoSnapshot = errors.New("no snapshot to verify")

	// ErrAddressNotFound is returned when the address is absent from the snapshot.
	ErrAddressNotFound = errors.New("address not found in snapshot")
)

// SnapshotVerifier implements Verifier over a transfer store and a snapshot store.
//
// The ledger is append-only, so a snapshot verifies cleanly only until new
// transfers touching its addresses arrive.
type SnapshotVerifier struct {
	transfers     storage.TransferStore
	snapshots     storage.UserStatsStore
	chronological bool
}

// SnapshotVerifierOptions contains configuration for creating a SnapshotVerifier.
type SnapshotVerifierOptions struct {
	Transfers storage.TransferStore
	Snapshots storage.UserStatsStore

	// Chronological must match the setting the snapshot was computed with.
	Chronological bool
}

// Compile-time interface check
var _ Verifier = (*SnapshotVerifier)(nil)

// NewSnapshotVerifier creates a new SnapshotVerifier.
func NewSnapshotVerifier(opts SnapshotVerifierOptions) *SnapshotVerifier {
	return &SnapshotVerifier{
		transfers:     opts.Transfers,
		snapshots:     opts.Snapshots,
		chronological: opts.Chronological,
	}
}

// VerifyAddress recomputes the full ledger and compares one address.
func (v *SnapshotVerifier) VerifyAddress(ctx context.Context, address string) (*AddressResult, error) {
	stored, err := v.snapshots.GetLatestByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	recomputed, err := v.recompute(ctx)
	if err != nil {
		return nil, err
	}

	got, ok := recomputed[address]
	if !ok {
		return &AddressResult{Address: address, Match: false}, nil
	}
	return compareAddress(stored, got), nil
}

// VerifyLatest compares every address of the latest snapshot and lists
// addresses present on only one side.
func (v *SnapshotVerifier) VerifyLatest(ctx context.Context) (*Report, error) {
	snap, err := v.snapshots.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}

	recomputed, err := v.recompute(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ComputedAt:     snap.ComputedAt,
		TotalAddresses: len(snap.Stats),
	}

	seen := make(map[string]bool, len(snap.Stats))
	for _, stored := range snap.Stats {
		seen[stored.Address] = true

		got, ok := recomputed[stored.Address]
		if !ok {
			report.MissingInLedger = append(report.MissingInLedger, stored.Address)
			report.DivergentAddresses++
			continue
		}

		result := compareAddress(stored, got)
		if result.Match {
			report.MatchedAddresses++
			continue
		}
		report.DivergentAddresses++
		report.Results = append(report.Results, *result)
	}

	for addr := range recomputed {
		if !seen[addr] {
			report.MissingInSnapshot = append(report.MissingInSnapshot, addr)
		}
	}
	sort.Strings(report.MissingInSnapshot)

	return report, nil
}

func (v *SnapshotVerifier) recompute(ctx context.Context) (map[string]*domain.UserStats, error) {
	transfers, err := v.transfers.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transfers: %w", err)
	}
	if v.chronological {
		for i, t := range transfers {
			if t == nil {
				return nil, fmt.Errorf("%w at index %d", stats.ErrNilTransfer, i)
			}
		}
		domain.SortTransfers(transfers)
	}

	computed, err := stats.ComputeUserStats(transfers)
	if err != nil {
		return nil, err
	}

	byAddress := make(map[string]*domain.UserStats, len(computed))
	for _, s := range computed {
		byAddress[s.Address] = s
	}
	return byAddress, nil
}

func compareAddress(stored, recomputed *domain.UserStats) *AddressResult {
	divergences := CompareUserStats(stored, recomputed)
	return &AddressResult{
		Address:     stored.Address,
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}
}
