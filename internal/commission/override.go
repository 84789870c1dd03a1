package commission

import (
	"syntarex/internal/models"
)

// OverrideEntries pays the uplines of a binary earner a share of its unscaled
// binary amount. An upline whose rank is below the level's minimum gets
// nothing for that level.
func OverrideEntries(snap *Snapshot, week Week, binary models.CommissionEntry, uplines []string, ranks map[string]int) []models.CommissionEntry {
	var entries []models.CommissionEntry
	for i, upline := range uplines {
		if i >= MaxTiers {
			break
		}
		level := snap.OverrideLevels[i]
		if ranks[upline] < level.MinRank {
			continue
		}
		base := roundMoney(binary.BaseAmount.Mul(level.Rate))
		if !base.IsPositive() {
			continue
		}
		entries = append(entries, models.CommissionEntry{
			WeekStart:    week.Start,
			Type:         models.CommissionOverride,
			UserID:       upline,
			SourceRef:    "binary:" + binary.UserID,
			Tier:         i + 1,
			SourceUserID: binary.UserID,
			BaseAmount:   base,
			Status:       models.EntryStatusPending,
		})
	}
	return entries
}
