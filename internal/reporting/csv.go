package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"transfer-stats/internal/domain"
)

var csvHeader = []string{"address", "total_volume", "avg_buy_price", "avg_sell_price", "max_balance"}

// WriteCSV writes one row per address, in the given order.
// Floats are written with the shortest exact representation.
func WriteCSV(w io.Writer, rows []*domain.UserStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range rows {
		record := []string{
			s.Address,
			formatFloat(s.TotalVolume),
			formatFloat(s.AvgBuyPrice),
			formatFloat(s.AvgSellPrice),
			formatFloat(s.MaxBalance),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", s.Address, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
