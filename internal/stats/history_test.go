package stats

import (
	"testing"

	"transfer-stats/internal/domain"
)

func TestBalanceHistory(t *testing.T) {
	history := BalanceHistory([]*domain.Transfer{
		makeTransfer("A", "B", 10, 1, 1),
		makeTransfer("B", "C", 5, 1, 2),
		makeTransfer("C", "C", 2, 1, 3),
	})

	want := map[string][]domain.BalanceSample{
		"A": {{TS: 1, Balance: -10}},
		"B": {{TS: 1, Balance: 10}, {TS: 2, Balance: 5}},
		"C": {{TS: 2, Balance: 5}, {TS: 3, Balance: 5}},
	}

	if len(history) != len(want) {
		t.Fatalf("expected %d addresses, got %d", len(want), len(history))
	}
	for addr, samples := range want {
		got := history[addr]
		if len(got) != len(samples) {
			t.Errorf("%s: expected %d samples, got %d", addr, len(samples), len(got))
			continue
		}
		for i := range samples {
			if got[i] != samples[i] {
				t.Errorf("%s sample %d: got %+v, want %+v", addr, i, got[i], samples[i])
			}
		}
	}
}

func TestBalanceHistory_PresentationOrder(t *testing.T) {
	// ts is recorded but not used for ordering.
	history := BalanceHistory([]*domain.Transfer{
		makeTransfer("A", "B", 1, 1, 9),
		makeTransfer("A", "B", 1, 1, 3),
	})

	b := history["B"]
	if len(b) != 2 || b[0].TS != 9 || b[1].TS != 3 {
		t.Errorf("expected samples in input order, got %+v", b)
	}
	if b[1].Balance != 2 {
		t.Errorf("expected final balance 2, got %f", b[1].Balance)
	}
}

func TestReplayPeak(t *testing.T) {
	tests := []struct {
		name    string
		samples []domain.BalanceSample
		want    float64
	}{
		{"empty", nil, 0},
		{"seller only floors at zero", []domain.BalanceSample{{TS: 1, Balance: -3}, {TS: 2, Balance: -8}}, 0},
		{"max sample", []domain.BalanceSample{{TS: 1, Balance: 4}, {TS: 2, Balance: 11}, {TS: 3, Balance: 2}}, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReplayPeak(tt.samples); got != tt.want {
				t.Errorf("ReplayPeak() = %f, want %f", got, tt.want)
			}
		})
	}
}

// The replay is uncorrected; the reported max balance is not.
func TestReplayPeak_DiffersFromCorrectedMaxBalance(t *testing.T) {
	transfers := []*domain.Transfer{makeTransfer("A", "B", 10, 2, 1)}

	stats, err := ComputeUserStats(transfers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	history := BalanceHistory(transfers)

	if replay := ReplayPeak(history["A"]); replay != 0 {
		t.Errorf("expected replay peak 0 for seller, got %f", replay)
	}
	if a := findStats(t, stats, "A"); a.MaxBalance != 10 {
		t.Errorf("expected corrected max balance 10, got %f", a.MaxBalance)
	}
}
