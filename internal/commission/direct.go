package commission

import (
	"fmt"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// unlockLevels maps a user to the highest commission unlock level of their
// active packages.
func unlockLevels(packages []models.UserPackage) map[string]int {
	out := make(map[string]int)
	for _, p := range packages {
		if p.IsActive && p.CommissionUnlockLevel > out[p.UserID] {
			out[p.UserID] = p.CommissionUnlockLevel
		}
	}
	return out
}

// DirectEntries pays the sponsors above a buyer, one entry per tier. A
// sponsor whose unlock level is below the tier forfeits that tier; the share
// is not passed further up.
func DirectEntries(snap *Snapshot, week Week, tx models.SalesTransaction, sponsors []string, unlock map[string]int) ([]models.CommissionEntry, decimal.Decimal) {
	var entries []models.CommissionEntry
	forfeited := zero
	for i, sponsor := range sponsors {
		if i >= MaxTiers {
			break
		}
		tier := i + 1
		base := roundMoney(tx.Amount.Mul(snap.DirectRates[i]))
		if !base.IsPositive() {
			continue
		}
		if unlock[sponsor] < tier {
			forfeited = forfeited.Add(base)
			continue
		}
		entries = append(entries, models.CommissionEntry{
			WeekStart:    week.Start,
			Type:         models.CommissionDirect,
			UserID:       sponsor,
			SourceRef:    fmt.Sprintf("tx:%d", tx.ID),
			Tier:         tier,
			SourceUserID: tx.UserID,
			BaseAmount:   base,
			Status:       models.EntryStatusPending,
		})
	}
	return entries, forfeited
}
