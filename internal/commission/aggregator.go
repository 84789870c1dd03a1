package commission

import (
	"sort"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// SalesSummary is the week's eligible sales volume.
type SalesSummary struct {
	Week     Week
	SV       decimal.Decimal
	PerUser  map[string]decimal.Decimal
	Eligible []models.SalesTransaction
	Skipped  int
}

// Aggregate sums eligible transactions of the week, globally and per buyer.
// Transactions outside the week, flagged ineligible, in another currency or
// with a non-positive amount are skipped.
func Aggregate(week Week, txs []models.SalesTransaction, currency string) SalesSummary {
	summary := SalesSummary{
		Week:    week,
		SV:      zero,
		PerUser: make(map[string]decimal.Decimal),
	}
	for _, tx := range txs {
		if !tx.IsEligible || !tx.Amount.IsPositive() || tx.Currency != currency ||
			!WeekOf(tx.WeekStart).Start.Equal(week.Start) {
			summary.Skipped++
			continue
		}
		summary.SV = summary.SV.Add(tx.Amount)
		summary.PerUser[tx.UserID] = summary.PerUser[tx.UserID].Add(tx.Amount)
		summary.Eligible = append(summary.Eligible, tx)
	}
	sort.Slice(summary.Eligible, func(i, j int) bool {
		return summary.Eligible[i].ID < summary.Eligible[j].ID
	})
	return summary
}
