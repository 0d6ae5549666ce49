package stats

import (
	"errors"
	"fmt"

	"transfer-stats/internal/domain"
)

// ErrNilTransfer is returned when the input contains a nil transfer.
var ErrNilTransfer = errors.New("nil transfer in input")

// Result is the output of Compute.
type Result struct {
	Stats []*domain.UserStats

	TransferCount int
	AddressCount  int

	// Funding-gap corrections applied to MaxBalance.
	SellerOnlyCorrections int
	RaisedToMaxSell       int
}

// ComputeUserStats computes one UserStats per address seen as sender or
// receiver. Transfers are processed in the given order.
func ComputeUserStats(transfers []*domain.Transfer) ([]*domain.UserStats, error) {
	res, err := Compute(transfers)
	if err != nil {
		return nil, err
	}
	return res.Stats, nil
}

// Compute runs aggregation, funding-gap correction and the statistics build.
// It performs no I/O and keeps no state between calls.
func Compute(transfers []*domain.Transfer) (*Result, error) {
	for i, t := range transfers {
		if t == nil {
			return nil, fmt.Errorf("%w at index %d", ErrNilTransfer, i)
		}
	}

	l := aggregate(transfers)
	c := correctFundingGaps(l)

	return &Result{
		Stats:                 buildUserStats(l),
		TransferCount:         len(transfers),
		AddressCount:          len(l.order),
		SellerOnlyCorrections: c.sellerOnly,
		RaisedToMaxSell:       c.raised,
	}, nil
}
