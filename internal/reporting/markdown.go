package reporting

import (
	"fmt"
	"strings"
	"time"
)

// cellEscaper keeps an address inside its table cell.
var cellEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

// RenderMarkdown renders report as Markdown string.
// limit caps the statistics table; limit <= 0 renders every row.
func RenderMarkdown(r *Report, limit int) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Transfer Statistics Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Computed: %s\n\n", time.UnixMilli(r.ComputedAt).UTC().Format(time.RFC3339)))
	order := "presentation"
	if r.Chronological {
		order = "chronological"
	}
	sb.WriteString(fmt.Sprintf("Processing order: %s\n\n", order))
	if r.Engine != "" {
		sb.WriteString(fmt.Sprintf("Engine: %s\n\n", r.Engine))
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	if r.Summary.TransferCount >= 0 {
		sb.WriteString(fmt.Sprintf("| Transfers | %d |\n", r.Summary.TransferCount))
	} else {
		sb.WriteString("| Transfers | n/a |\n")
	}
	sb.WriteString(fmt.Sprintf("| Addresses | %d |\n", r.Summary.AddressCount))
	sb.WriteString(fmt.Sprintf("| Total Volume | %.4f |\n", r.Summary.TotalVolume))
	if r.Corrections != nil {
		sb.WriteString(fmt.Sprintf("| Seller-only Corrections | %d |\n", r.Corrections.SellerOnly))
		sb.WriteString(fmt.Sprintf("| Raised to Max Sell | %d |\n", r.Corrections.RaisedToMaxSell))
	}
	sb.WriteString("\n")

	// Statistics
	sb.WriteString("## User Statistics\n\n")
	if len(r.Rows) > 0 {
		rows := r.Rows
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
		sb.WriteString("| Address | Total Volume | Avg Buy Price | Avg Sell Price | Max Balance |\n")
		sb.WriteString("|---------|--------------|---------------|----------------|-------------|\n")
		for _, s := range rows {
			sb.WriteString(fmt.Sprintf("| %s | %.4f | %.4f | %.4f | %.4f |\n",
				cellEscaper.Replace(s.Address), s.TotalVolume, s.AvgBuyPrice, s.AvgSellPrice, s.MaxBalance))
		}
		if hidden := len(r.Rows) - len(rows); hidden > 0 {
			sb.WriteString(fmt.Sprintf("\n%d more addresses not shown.\n", hidden))
		}
	} else {
		sb.WriteString("No statistics available.\n")
	}
	sb.WriteString("\n")

	// Notes
	sb.WriteString("## Notes\n\n")
	sb.WriteString(heuristicNote)
	sb.WriteString("\n")
	if r.Engine == EngineClickHouse {
		sb.WriteString("\n")
		sb.WriteString(clickhouseNote)
		sb.WriteString("\n")
	}

	return sb.String()
}
