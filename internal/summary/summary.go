// Package summary derives month-scoped spending aggregates from the receipt
// collection. Aggregates are never persisted; they are pure view artifacts
// recomputed from the full collection.
package summary

import (
	"math"
	"time"

	"github.com/avasquez/spendscan/internal/receipt"
)

// CategoryTotal is one category's share of a month's spending.
type CategoryTotal struct {
	Name              string  `json:"name"`
	Amount            float64 `json:"amount"`
	PercentageOfTotal float64 `json:"percentage_of_total"`
}

// MonthlyAggregate is the derived month view: the spend total plus a
// per-category breakdown. Categories appear in first-occurrence order of the
// grouping pass; callers wanting a display order sort explicitly.
type MonthlyAggregate struct {
	Month      string          `json:"month"` // YYYY-MM
	Total      float64         `json:"total"`
	Categories []CategoryTotal `json:"categories"`
}

// Monthly filters receipts to the calendar month of ref (YYYY-MM prefix match
// on the receipt date, so undated "N/A" receipts never match), sums the
// total, and groups totals by category. Percentages are rounded to one
// decimal place and reported as 0.0 across the board when the total is 0.
func Monthly(receipts []receipt.Receipt, ref time.Time) MonthlyAggregate {
	month := ref.Format("2006-01")

	var total float64
	amounts := make(map[string]float64)
	var order []string

	for _, r := range receipts {
		if len(r.Date) < len(month) || r.Date[:len(month)] != month {
			continue
		}
		category := r.Category
		if category == "" {
			category = receipt.CategoryOther
		}
		if _, seen := amounts[category]; !seen {
			order = append(order, category)
		}
		amounts[category] += r.TotalAmount
		total += r.TotalAmount
	}

	categories := make([]CategoryTotal, 0, len(order))
	for _, name := range order {
		amount := amounts[name]
		var pct float64
		if total > 0 {
			pct = math.Round(amount/total*1000) / 10
		}
		categories = append(categories, CategoryTotal{
			Name:              name,
			Amount:            amount,
			PercentageOfTotal: pct,
		})
	}

	return MonthlyAggregate{
		Month:      month,
		Total:      total,
		Categories: categories,
	}
}
