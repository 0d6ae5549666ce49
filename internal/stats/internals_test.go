package stats

import (
	"testing"

	"transfer-stats/internal/domain"
)

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name   string
		points []pricePoint
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []pricePoint{{price: 2, amount: 10}}, 2},
		{"weighted", []pricePoint{{price: 1, amount: 2}, {price: 3, amount: 6}}, 2.5},
		{"zero quantity", []pricePoint{{price: 5, amount: 0}, {price: 7, amount: 0}}, 0},
		{"net negative quantity", []pricePoint{{price: 5, amount: -3}, {price: 7, amount: 1}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := weightedAverage(tt.points); got != tt.want {
				t.Errorf("weightedAverage() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestWeightedAverage_WithinPriceRange(t *testing.T) {
	lists := [][]pricePoint{
		{{price: 0.1, amount: 1}, {price: 2.0, amount: 1000}},
		{{price: 1.5, amount: 3}, {price: 1.5, amount: 7}},
		{{price: 10, amount: 0.001}, {price: 0.5, amount: 42}, {price: 3, amount: 9}},
		{{price: -2, amount: 4}, {price: 2, amount: 4}},
	}

	for i, points := range lists {
		lo, hi := points[0].price, points[0].price
		for _, p := range points {
			lo = min(lo, p.price)
			hi = max(hi, p.price)
		}
		avg := weightedAverage(points)
		if avg < lo || avg > hi {
			t.Errorf("list %d: average %f outside [%f, %f]", i, avg, lo, hi)
		}
	}
}

func TestAggregate_IncrementalPeakMatchesReplay(t *testing.T) {
	transfers := []*domain.Transfer{
		makeTransfer("A", "B", 10, 1, 1),
		makeTransfer("B", "C", 4, 1, 2),
		makeTransfer("C", "B", 1, 1, 3),
		makeTransfer("B", "B", 7, 1, 4),
		makeTransfer("D", "C", 2, 1, 5),
	}

	l := aggregate(transfers)
	history := BalanceHistory(transfers)

	for _, addr := range l.order {
		if got, want := l.peaks[addr], ReplayPeak(history[addr]); got != want {
			t.Errorf("%s: incremental peak %f, replay peak %f", addr, got, want)
		}
	}
}

func TestAggregate_PriceListsInInputOrder(t *testing.T) {
	l := aggregate([]*domain.Transfer{
		makeTransfer("A", "B", 1, 10, 1),
		makeTransfer("A", "B", 2, 20, 2),
		makeTransfer("B", "A", 3, 30, 3),
	})

	wantBuysB := []pricePoint{{price: 10, amount: 1}, {price: 20, amount: 2}}
	if len(l.buys["B"]) != len(wantBuysB) {
		t.Fatalf("expected %d buys for B, got %d", len(wantBuysB), len(l.buys["B"]))
	}
	for i, p := range wantBuysB {
		if l.buys["B"][i] != p {
			t.Errorf("B buy %d: got %+v, want %+v", i, l.buys["B"][i], p)
		}
	}
	if len(l.sells["A"]) != 2 || len(l.sells["B"]) != 1 {
		t.Errorf("unexpected sell list sizes: A=%d B=%d", len(l.sells["A"]), len(l.sells["B"]))
	}
	if l.balances["A"] != 0 || l.balances["B"] != 0 {
		t.Errorf("expected both balances back at 0, got A=%f B=%f", l.balances["A"], l.balances["B"])
	}
}

func TestCorrectFundingGaps(t *testing.T) {
	t.Run("seller only gets total outflow", func(t *testing.T) {
		l := aggregate([]*domain.Transfer{
			makeTransfer("S", "A", 4, 1, 1),
			makeTransfer("S", "B", 6, 1, 2),
		})
		c := correctFundingGaps(l)

		if l.peaks["S"] != 10 {
			t.Errorf("expected S peak 10, got %f", l.peaks["S"])
		}
		if c.sellerOnly != 1 || c.raised != 0 {
			t.Errorf("unexpected corrections %+v", c)
		}
	})

	t.Run("buyer and seller raised to largest send", func(t *testing.T) {
		l := aggregate([]*domain.Transfer{
			makeTransfer("S", "X", 8, 1, 1),
			makeTransfer("X", "S", 2, 1, 2),
			makeTransfer("S", "Y", 3, 1, 3),
		})
		// S runs -8, -6, -9: naive peak 0.
		c := correctFundingGaps(l)

		if l.peaks["S"] != 8 {
			t.Errorf("expected S peak 8, got %f", l.peaks["S"])
		}
		if c.raised != 1 {
			t.Errorf("expected 1 raise, got %d", c.raised)
		}
	})

	t.Run("peak above largest send is kept", func(t *testing.T) {
		l := aggregate([]*domain.Transfer{
			makeTransfer("X", "S", 50, 1, 1),
			makeTransfer("S", "Y", 5, 1, 2),
		})
		c := correctFundingGaps(l)

		if l.peaks["S"] != 50 {
			t.Errorf("expected S peak 50, got %f", l.peaks["S"])
		}
		if c.raised != 0 {
			t.Errorf("expected no raise, got %d", c.raised)
		}
	})

	t.Run("receivers untouched", func(t *testing.T) {
		l := aggregate([]*domain.Transfer{
			makeTransfer("S", "R", 5, 1, 1),
			makeTransfer("S", "R", -9, 1, 2),
		})
		correctFundingGaps(l)

		// R: +5 then -4, never sends.
		if l.peaks["R"] != 5 {
			t.Errorf("expected R peak 5, got %f", l.peaks["R"])
		}
	})
}

func TestCorrectFundingGaps_LowerBoundProperty(t *testing.T) {
	transfers := []*domain.Transfer{
		makeTransfer("S1", "A", 3, 1, 1),
		makeTransfer("S1", "B", 9, 1, 2),
		makeTransfer("S2", "A", 1, 1, 3),
		makeTransfer("A", "S2", 0.5, 1, 4),
		makeTransfer("S2", "C", 12, 1, 5),
	}

	stats, err := ComputeUserStats(transfers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// S1 never bought: at least its total outflow.
	if s1 := findStats(t, stats, "S1"); s1.MaxBalance < 12 {
		t.Errorf("S1: expected max balance >= 12, got %f", s1.MaxBalance)
	}
	// S2 bought once: at least its largest send.
	if s2 := findStats(t, stats, "S2"); s2.MaxBalance < 12 {
		t.Errorf("S2: expected max balance >= 12, got %f", s2.MaxBalance)
	}
}
