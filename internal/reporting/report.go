// Package reporting renders statistics runs as Markdown and CSV.
package reporting

import (
	"time"

	"transfer-stats/internal/domain"
)

// Engines that produce report rows.
const (
	EngineInProcess  = "in-process" // stats package replaying the ledger
	EngineClickHouse = "clickhouse" // aggregation query inside ClickHouse
)

// Report is one rendered statistics run.
type Report struct {
	// Metadata
	GeneratedAt   time.Time
	ComputedAt    int64  // unix ms of the run
	Chronological bool   // transfers were sorted by ts before aggregation
	Engine        string // EngineInProcess or EngineClickHouse

	Summary Summary

	// Corrections is nil when the source does not record them,
	// e.g. a snapshot read back from storage.
	Corrections *Corrections

	// Rows sorted by address ASC.
	Rows []*domain.UserStats
}

// Summary describes the input and output sizes of a run.
type Summary struct {
	TransferCount int // -1 when unknown
	AddressCount  int
	TotalVolume   float64 // sum of per-address volumes
}

// Corrections counts funding-gap adjustments applied to MaxBalance.
type Corrections struct {
	SellerOnly      int
	RaisedToMaxSell int
}

// heuristicNote explains how MaxBalance is derived for addresses that sent more than they received.
const heuristicNote = "max_balance is the peak running balance in processing order. " +
	"For addresses whose funding is not in the ledger it is a heuristic lower bound: " +
	"total sent for addresses that never received, otherwise at least the largest single send. " +
	"It changes if the same transfers are processed in a different order."

// clickhouseNote lists where the in-database aggregation differs from the in-process one.
const clickhouseNote = "Computed by the ClickHouse aggregation query: only positive amounts are counted, " +
	"addresses that appear only in non-positive transfers are omitted, " +
	"and a self-transfer adds its amount to volume once per side. " +
	"Balances are replayed in ts order regardless of the processing order setting."
