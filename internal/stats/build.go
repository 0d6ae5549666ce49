package stats

import "transfer-stats/internal/domain"

// weightedAverage returns sum(price*amount) / sum(amount).
// Returns 0 when the summed amount is not positive, which covers the empty
// list and lists made only of zero or negative amounts.
func weightedAverage(points []pricePoint) float64 {
	var sumPx, sumAmt float64
	for _, p := range points {
		sumPx += p.price * p.amount
		sumAmt += p.amount
	}
	if sumAmt > 0 {
		return sumPx / sumAmt
	}
	return 0
}

// buildUserStats emits one record per distinct address, in first-seen order.
// MaxBalance is read from the corrected peak map, the single source of truth.
func buildUserStats(l *ledger) []*domain.UserStats {
	result := make([]*domain.UserStats, 0, len(l.order))

	for _, addr := range l.order {
		result = append(result, &domain.UserStats{
			Address:      addr,
			TotalVolume:  l.volumes[addr],
			AvgBuyPrice:  weightedAverage(l.buys[addr]),
			AvgSellPrice: weightedAverage(l.sells[addr]),
			MaxBalance:   l.peaks[addr],
		})
	}

	return result
}
