// Package verification recomputes statistics from the stored ledger and
// checks them against the latest persisted snapshot.
package verification

import (
	"context"
	"math"

	"transfer-stats/internal/domain"
)

// FloatTolerance is the relative tolerance for float64 comparisons.
// Values below 1 in magnitude are compared with it as an absolute tolerance.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and recomputed values.
type FieldDivergence struct {
	Field    string           `json:"field"`
	Expected domain.JSONFloat `json:"expected"` // stored value
	Actual   domain.JSONFloat `json:"actual"`   // recomputed value
}

// AddressResult contains the result of verifying one address.
type AddressResult struct {
	Address     string            `json:"address"`
	Match       bool              `json:"match"`
	Divergences []FieldDivergence `json:"divergences,omitempty"`
}

// Report contains results for a whole snapshot.
type Report struct {
	ComputedAt         int64           `json:"computed_at"`
	TotalAddresses     int             `json:"total_addresses"`
	MatchedAddresses   int             `json:"matched_addresses"`
	DivergentAddresses int             `json:"divergent_addresses"`
	MissingInSnapshot  []string        `json:"missing_in_snapshot,omitempty"` // recomputed but not stored
	MissingInLedger    []string        `json:"missing_in_ledger,omitempty"`   // stored but not recomputed
	Results            []AddressResult `json:"results,omitempty"`             // divergent addresses only
}

// OK reports whether the snapshot matches the ledger exactly.
func (r *Report) OK() bool {
	return r.DivergentAddresses == 0 && len(r.MissingInSnapshot) == 0
}

// Verifier checks persisted statistics against a fresh computation.
type Verifier interface {
	// VerifyAddress recomputes the ledger and compares a single address.
	VerifyAddress(ctx context.Context, address string) (*AddressResult, error)

	// VerifyLatest compares every address of the latest snapshot.
	VerifyLatest(ctx context.Context) (*Report, error)
}

// CompareUserStats compares two stats of the same address and returns divergences.
func CompareUserStats(stored, recomputed *domain.UserStats) []FieldDivergence {
	fields := []struct {
		name     string
		expected float64
		actual   float64
	}{
		{"total_volume", stored.TotalVolume, recomputed.TotalVolume},
		{"avg_buy_price", stored.AvgBuyPrice, recomputed.AvgBuyPrice},
		{"avg_sell_price", stored.AvgSellPrice, recomputed.AvgSellPrice},
		{"max_balance", stored.MaxBalance, recomputed.MaxBalance},
	}

	var divergences []FieldDivergence
	for _, f := range fields {
		if !floatEquals(f.expected, f.actual) {
			divergences = append(divergences, FieldDivergence{
				Field:    f.name,
				Expected: domain.JSONFloat(f.expected),
				Actual:   domain.JSONFloat(f.actual),
			})
		}
	}
	return divergences
}

func floatEquals(a, b float64) bool {
	if a == b || (math.IsNaN(a) && math.IsNaN(b)) {
		return true
	}
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= FloatTolerance*scale
}
