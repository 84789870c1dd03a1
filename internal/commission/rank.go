package commission

import (
	"sort"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// RankMetrics are the raw values a rank decision was made on.
type RankMetrics struct {
	PersonalSales   decimal.Decimal `json:"personalSales"`
	TeamSales       decimal.Decimal `json:"teamSales"`
	LeftVolume      decimal.Decimal `json:"leftVolume"`
	RightVolume     decimal.Decimal `json:"rightVolume"`
	Hashrate        decimal.Decimal `json:"hashrate"`
	DirectReferrals int             `json:"directReferrals"`
}

// RankResult is the outcome of evaluating one user.
type RankResult struct {
	UserID        string      `json:"userId"`
	Level         int         `json:"level"`
	Name          string      `json:"name"`
	PreviousLevel int         `json:"previousLevel"`
	Changed       bool        `json:"changed"`
	Metrics       RankMetrics `json:"metrics"`
}

// QualifyingRank scans the rank table from the highest level down and
// returns the first rank whose thresholds are all met, or nil.
func (s *Snapshot) QualifyingRank(m RankMetrics) *models.RankDefinition {
	for i := range s.Ranks {
		r := &s.Ranks[i]
		if m.PersonalSales.LessThan(r.MinPersonalSales) ||
			m.TeamSales.LessThan(r.MinTeamSales) ||
			m.LeftVolume.LessThan(r.MinLeftVolume) ||
			m.RightVolume.LessThan(r.MinRightVolume) ||
			m.Hashrate.LessThan(r.MinHashrate) ||
			m.DirectReferrals < r.MinDirectReferrals {
			continue
		}
		return r
	}
	return nil
}

// EvaluateRank decides a user's rank for the week. With sticky ranks a user
// is never moved below the stored level.
func (s *Snapshot) EvaluateRank(userID string, m RankMetrics, stored int) RankResult {
	res := RankResult{UserID: userID, PreviousLevel: stored, Metrics: m}
	if r := s.QualifyingRank(m); r != nil {
		res.Level = r.Level
		res.Name = r.Name
	}
	if s.StickyRanks && stored > res.Level {
		res.Level = stored
		res.Name = ""
		if r := s.Rank(stored); r != nil {
			res.Name = r.Name
		}
	}
	res.Changed = res.Level != stored
	return res
}

// rankInputs gathers what the evaluator needs from the stores.
type rankInputs struct {
	personalBefore map[string]decimal.Decimal
	packages       []models.UserPackage
	stored         map[string]int
}

// evaluateRanks computes every known user's rank. Users already excluded
// keep their stored rank.
func evaluateRanks(snap *Snapshot, sales SalesSummary, ledger *volumeLedger, tree *placementTree,
	graph *sponsorGraph, in rankInputs, excluded map[string]bool) map[string]RankResult {
	hashrate := make(map[string]decimal.Decimal)
	for _, p := range in.packages {
		if p.IsActive {
			hashrate[p.UserID] = hashrate[p.UserID].Add(p.Hashrate)
		}
	}

	ids := make(map[string]bool)
	for id := range tree.nodes {
		ids[id] = true
	}
	for id := range sales.PerUser {
		ids[id] = true
	}
	for id := range graph.directs {
		ids[id] = true
	}
	for id := range in.stored {
		ids[id] = true
	}
	for id := range hashrate {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := make(map[string]RankResult, len(sorted))
	for _, id := range sorted {
		stored := in.stored[id]
		if excluded[id] {
			res := RankResult{UserID: id, Level: stored, PreviousLevel: stored}
			if r := snap.Rank(stored); r != nil {
				res.Name = r.Name
			}
			out[id] = res
			continue
		}
		left, right := zero, zero
		if n, ok := tree.nodes[id]; ok {
			left, right = n.LeftVolume, n.RightVolume
		}
		if v, ok := ledger.users[id]; ok {
			left = left.Add(v.Left.Posted)
			right = right.Add(v.Right.Posted)
		}
		m := RankMetrics{
			PersonalSales:   in.personalBefore[id].Add(sales.PerUser[id]),
			TeamSales:       left.Add(right),
			LeftVolume:      left,
			RightVolume:     right,
			Hashrate:        hashrate[id],
			DirectReferrals: graph.directs[id],
		}
		out[id] = snap.EvaluateRank(id, m, stored)
	}
	return out
}
