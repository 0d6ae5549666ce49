// Package stats derives per-address trading statistics from a transfer ledger.
//
// The computation is a pure function of the transfer slice and its order:
// peak balances are tracked while replaying transfers in the order supplied,
// they are not re-sorted by timestamp. Use domain.SortTransfers first when a
// chronological peak is wanted.
package stats

import "transfer-stats/internal/domain"

// pricePoint is one (usd_price, amount) pair used for weighted averaging.
type pricePoint struct {
	price  float64
	amount float64
}

// ledger holds the per-address accumulators of one aggregation call.
// It is never shared between calls.
type ledger struct {
	balances map[string]float64
	peaks    map[string]float64
	volumes  map[string]float64
	buys     map[string][]pricePoint // transfers where the address received
	sells    map[string][]pricePoint // transfers where the address sent

	// order lists addresses in first-seen order so output is reproducible.
	order []string
}

func newLedger() *ledger {
	return &ledger{
		balances: make(map[string]float64),
		peaks:    make(map[string]float64),
		volumes:  make(map[string]float64),
		buys:     make(map[string][]pricePoint),
		sells:    make(map[string][]pricePoint),
	}
}

// touch registers addr with a zero balance and zero peak on first reference.
func (l *ledger) touch(addr string) {
	if _, seen := l.balances[addr]; seen {
		return
	}
	l.balances[addr] = 0
	l.peaks[addr] = 0
	l.order = append(l.order, addr)
}

// observe raises the stored peak of addr to its current balance if higher.
func (l *ledger) observe(addr string) {
	if b := l.balances[addr]; b > l.peaks[addr] {
		l.peaks[addr] = b
	}
}

// aggregate replays transfers once, in the given order.
// No transfer is skipped regardless of the sign or size of its amount.
// Peaks are compared after the whole transfer is applied, so a self-transfer
// never exposes the intermediate debited balance.
func aggregate(transfers []*domain.Transfer) *ledger {
	l := newLedger()

	for _, t := range transfers {
		l.touch(t.AddressFrom)
		l.touch(t.AddressTo)

		l.balances[t.AddressFrom] -= t.Amount
		l.balances[t.AddressTo] += t.Amount

		l.observe(t.AddressTo)
		l.observe(t.AddressFrom)

		l.buys[t.AddressTo] = append(l.buys[t.AddressTo], pricePoint{price: t.USDPrice, amount: t.Amount})
		l.sells[t.AddressFrom] = append(l.sells[t.AddressFrom], pricePoint{price: t.USDPrice, amount: t.Amount})

		// A self-transfer counts once toward volume.
		v := max(t.Amount, 0)
		l.volumes[t.AddressFrom] += v
		if t.AddressTo != t.AddressFrom {
			l.volumes[t.AddressTo] += v
		}
	}

	return l
}
