package domain

import "encoding/json"

// BalanceSample is the running balance of one address right after a transfer.
type BalanceSample struct {
	TS      uint64  `json:"ts"`
	Balance float64 `json:"balance"`
}

type balanceSampleJSON struct {
	TS      uint64    `json:"ts"`
	Balance JSONFloat `json:"balance"`
}

// MarshalJSON implements json.Marshaler; a non-finite balance is written as a string.
func (b BalanceSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(balanceSampleJSON{TS: b.TS, Balance: JSONFloat(b.Balance)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BalanceSample) UnmarshalJSON(data []byte) error {
	var raw balanceSampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = BalanceSample{TS: raw.TS, Balance: float64(raw.Balance)}
	return nil
}
