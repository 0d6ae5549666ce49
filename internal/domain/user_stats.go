package domain

import (
	"encoding/json"
	"sort"
)

// UserStats is the per-address summary derived from a transfer batch.
// Recomputed on every run; never mutated after construction.
//
// Extreme inputs can drive fields to ±Inf or NaN; the JSON form encodes
// those through JSONFloat instead of failing.
type UserStats struct {
	Address      string  `json:"address"`
	TotalVolume  float64 `json:"total_volume"`   // sum of max(amount, 0) over sent or received transfers
	AvgBuyPrice  float64 `json:"avg_buy_price"`  // amount-weighted, 0 if never received
	AvgSellPrice float64 `json:"avg_sell_price"` // amount-weighted, 0 if never sent
	MaxBalance   float64 `json:"max_balance"`    // peak running balance after funding-gap correction
}

type userStatsJSON struct {
	Address      string    `json:"address"`
	TotalVolume  JSONFloat `json:"total_volume"`
	AvgBuyPrice  JSONFloat `json:"avg_buy_price"`
	AvgSellPrice JSONFloat `json:"avg_sell_price"`
	MaxBalance   JSONFloat `json:"max_balance"`
}

// MarshalJSON implements json.Marshaler.
func (s UserStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(userStatsJSON{
		Address:      s.Address,
		TotalVolume:  JSONFloat(s.TotalVolume),
		AvgBuyPrice:  JSONFloat(s.AvgBuyPrice),
		AvgSellPrice: JSONFloat(s.AvgSellPrice),
		MaxBalance:   JSONFloat(s.MaxBalance),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *UserStats) UnmarshalJSON(data []byte) error {
	var raw userStatsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = UserStats{
		Address:      raw.Address,
		TotalVolume:  float64(raw.TotalVolume),
		AvgBuyPrice:  float64(raw.AvgBuyPrice),
		AvgSellPrice: float64(raw.AvgSellPrice),
		MaxBalance:   float64(raw.MaxBalance),
	}
	return nil
}

// StatsSnapshot is one persisted result of a statistics run.
// Corresponds to the user_stats table.
type StatsSnapshot struct {
	ComputedAt int64        `json:"computed_at"` // unix ms
	Stats      []*UserStats `json:"stats"`
}

// SortUserStats sorts stats in place by address ASC.
func SortUserStats(stats []*UserStats) {
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Address < stats[j].Address
	})
}
