package stats

import "transfer-stats/internal/domain"

// BalanceHistory replays transfers in the given order and returns, per
// address, the running balance after every transfer touching it.
// A self-transfer yields a single sample.
//
// The trace is NOT corrected for funding gaps. It is meant for auditing and
// charting; UserStats.MaxBalance always comes from the corrected incremental
// peak, never from this replay.
func BalanceHistory(transfers []*domain.Transfer) map[string][]domain.BalanceSample {
	history := make(map[string][]domain.BalanceSample)
	balances := make(map[string]float64)

	for _, t := range transfers {
		balances[t.AddressFrom] -= t.Amount
		balances[t.AddressTo] += t.Amount

		history[t.AddressFrom] = append(history[t.AddressFrom], domain.BalanceSample{
			TS:      t.TS,
			Balance: balances[t.AddressFrom],
		})
		if t.AddressTo == t.AddressFrom {
			continue
		}
		history[t.AddressTo] = append(history[t.AddressTo], domain.BalanceSample{
			TS:      t.TS,
			Balance: balances[t.AddressTo],
		})
	}

	return history
}

// ReplayPeak returns the highest balance in samples, floored at zero.
// For an address that only sends this is 0, which understates its real peak.
func ReplayPeak(samples []domain.BalanceSample) float64 {
	peak := 0.0
	for _, s := range samples {
		peak = max(peak, s.Balance)
	}
	return peak
}
