package commission

import (
	"fmt"
	"sort"
	"time"

	"syntarex/internal/models"
)

// SettlementLeaf is the canonical string committed for one settlement.
func SettlementLeaf(s models.WeeklySettlement) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		WeekOf(s.WeekStart).Key(), s.UserID,
		FormatMoney(s.DirectTotal), FormatMoney(s.BinaryTotal), FormatMoney(s.OverrideTotal), FormatMoney(s.Total))
}

// BuildSettlements folds scaled entries into one row per user, ordered by
// user id, each carrying its leaf hash.
func BuildSettlements(week Week, entries []models.CommissionEntry) []models.WeeklySettlement {
	byUser := make(map[string]*models.WeeklySettlement)
	for _, e := range entries {
		s, ok := byUser[e.UserID]
		if !ok {
			s = &models.WeeklySettlement{
				UserID:        e.UserID,
				WeekStart:     week.Start,
				DirectTotal:   zero,
				BinaryTotal:   zero,
				OverrideTotal: zero,
				Total:         zero,
			}
			byUser[e.UserID] = s
		}
		switch e.Type {
		case models.CommissionDirect:
			s.DirectTotal = s.DirectTotal.Add(e.ScaledAmount)
		case models.CommissionBinary:
			s.BinaryTotal = s.BinaryTotal.Add(e.ScaledAmount)
		case models.CommissionOverride:
			s.OverrideTotal = s.OverrideTotal.Add(e.ScaledAmount)
		}
		s.Total = s.Total.Add(e.ScaledAmount)
		if e.ScaledAmount.LessThan(e.BaseAmount) {
			s.CapApplied = true
		}
	}

	out := make([]models.WeeklySettlement, 0, len(byUser))
	for _, s := range byUser {
		s.LeafHash = hashLeaf(SettlementLeaf(*s))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Commitment is the Merkle root over the settlements' leaf hashes in user id
// order. An empty week commits to the hash of its key.
func Commitment(week Week, settlements []models.WeeklySettlement) string {
	if len(settlements) == 0 {
		return hashLeaf("empty|" + week.Key())
	}
	return MerkleRoot(leafHashes(settlements))
}

func leafHashes(settlements []models.WeeklySettlement) []string {
	sorted := make([]models.WeeklySettlement, len(settlements))
	copy(sorted, settlements)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })
	leaves := make([]string, len(sorted))
	for i, s := range sorted {
		leaves[i] = hashLeaf(SettlementLeaf(s))
	}
	return leaves
}

// InclusionProof is what a claimant needs to prove their settlement is part
// of a finalized week.
type InclusionProof struct {
	WeekStart  string      `json:"weekStart"`
	UserID     string      `json:"userId"`
	Leaf       string      `json:"leaf"`
	LeafHash   string      `json:"leafHash"`
	Proof      []ProofStep `json:"proof"`
	Commitment string      `json:"commitment"`
}

// ProveInclusion builds the inclusion proof of userID within settlements.
func ProveInclusion(week Week, settlements []models.WeeklySettlement, userID string) (*InclusionProof, error) {
	leaves := leafHashes(settlements)
	sorted := make([]models.WeeklySettlement, len(settlements))
	copy(sorted, settlements)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	for i, s := range sorted {
		if s.UserID != userID {
			continue
		}
		proof, err := MerkleProof(leaves, i)
		if err != nil {
			return nil, err
		}
		return &InclusionProof{
			WeekStart:  week.Key(),
			UserID:     userID,
			Leaf:       SettlementLeaf(s),
			LeafHash:   leaves[i],
			Proof:      proof,
			Commitment: MerkleRoot(leaves),
		}, nil
	}
	return nil, fmt.Errorf("ProveInclusion: %s in %s: %w", userID, week, ErrUserNotSettled)
}

func markFinalized(settlements []models.WeeklySettlement, at time.Time) {
	for i := range settlements {
		settlements[i].IsFinalized = true
		settlements[i].FinalizedAt = &at
	}
}
