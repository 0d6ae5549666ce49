package domain

import "sort"

// Transfer is one immutable movement of the fungible asset between two addresses.
// Corresponds to the transfers table.
type Transfer struct {
	TS          uint64  `json:"ts"`           // unix seconds, not unique
	AddressFrom string  `json:"address_from"` // sender, may equal AddressTo
	AddressTo   string  `json:"address_to"`   // receiver
	Amount      float64 `json:"amount"`       // accepted as-is, zero and negative included
	USDPrice    float64 `json:"usd_price"`    // unit price used for weighted averages
}

// TransferLess reports whether a precedes b in chronological order.
// Ties on ts are broken by address_from, address_to, amount, usd_price so that
// the order is total for distinct transfers.
func TransferLess(a, b *Transfer) bool {
	if a.TS != b.TS {
		return a.TS < b.TS
	}
	if a.AddressFrom != b.AddressFrom {
		return a.AddressFrom < b.AddressFrom
	}
	if a.AddressTo != b.AddressTo {
		return a.AddressTo < b.AddressTo
	}
	if a.Amount != b.Amount {
		return a.Amount < b.Amount
	}
	return a.USDPrice < b.USDPrice
}

// SortTransfers sorts transfers in place by TransferLess.
// Peak balances follow presentation order, so callers that want chronological
// peaks sort before computing.
func SortTransfers(transfers []*Transfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		return TransferLess(transfers[i], transfers[j])
	})
}
