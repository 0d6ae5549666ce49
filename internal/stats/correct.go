package stats

// corrections counts the adjustments made by correctFundingGaps.
type corrections struct {
	sellerOnly int // peak replaced by total outflow
	raised     int // peak raised to the largest single send
}

// correctFundingGaps adjusts peaks of addresses whose funding is not visible
// in the ledger. The model has no deposit or mint events, so an address that
// only sends never shows a positive running balance.
//
// This is a lower-bound heuristic, not a reconstruction:
//   - never received: peak = total amount sent (initial holdings exactly
//     covered the observed outflow);
//   - received and sent: peak is at least the largest single send.
//
// Addresses that never sent are left untouched.
func correctFundingGaps(l *ledger) corrections {
	var c corrections

	for addr, sells := range l.sells {
		if len(sells) == 0 {
			continue
		}

		if len(l.buys[addr]) == 0 {
			total := 0.0
			for _, s := range sells {
				total += s.amount
			}
			l.peaks[addr] = total
			c.sellerOnly++
			continue
		}

		maxSell := sells[0].amount
		for _, s := range sells[1:] {
			maxSell = max(maxSell, s.amount)
		}
		if l.peaks[addr] < maxSell {
			l.peaks[addr] = maxSell
			c.raised++
		}
	}

	return c
}
