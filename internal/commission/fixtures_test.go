package commission

import (
	"testing"
	"time"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func mustWeek(t *testing.T, key string) Week {
	t.Helper()
	w, err := ParseWeek(key)
	require.NoError(t, err)
	return w
}

func mustSnapshot(t *testing.T, s models.CommissionSettings, ranks ...models.RankDefinition) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(&s, ranks)
	require.NoError(t, err)
	return snap
}

func sale(id uint, user, amount string, week Week) models.SalesTransaction {
	return models.SalesTransaction{
		ID:         id,
		UserID:     user,
		Amount:     d(amount),
		Currency:   "USD",
		WeekStart:  week.Start,
		IsEligible: true,
	}
}

func sponsorEdge(id uint, sponsor, referee string) models.ReferralEdge {
	return models.ReferralEdge{ID: id, SponsorID: sponsor, RefereeID: referee, Level: 1, IsActive: true}
}

func node(user string, left, right string) models.BinaryNode {
	n := models.BinaryNode{UserID: user}
	if left != "" {
		n.LeftChildID = strPtr(left)
	}
	if right != "" {
		n.RightChildID = strPtr(right)
	}
	return n
}

func unlocked(user string, level int) models.UserPackage {
	return models.UserPackage{
		UserID:                user,
		PackageName:           "miner",
		CommissionUnlockLevel: level,
		IsActive:              true,
		PurchasedAt:           time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// networkStore is a small network in week 2024-01-08:
//
//	root
//	├── left:  alice (buys 1000)
//	└── right: bob   (buys 400)
//
// alice and bob are sponsored by root, root by top.
func networkStore(t *testing.T) (*MemoryStore, Week) {
	t.Helper()
	week := mustWeek(t, "2024-01-08")
	settings := models.DefaultCommissionSettings()

	s := NewMemoryStore()
	s.Settings = &settings
	s.Ranks = []models.RankDefinition{
		{ID: 1, Level: 1, Name: "Bronze", MinDirectReferrals: 1},
		{ID: 2, Level: 2, Name: "Silver", MinDirectReferrals: 2, MinTeamSales: d("1000")},
	}
	s.Transactions = []models.SalesTransaction{
		sale(1, "alice", "1000", week),
		sale(2, "bob", "400", week),
	}
	s.Edges = []models.ReferralEdge{
		sponsorEdge(1, "top", "root"),
		sponsorEdge(2, "root", "alice"),
		sponsorEdge(3, "root", "bob"),
	}
	s.Nodes = []models.BinaryNode{
		node("top", "root", ""),
		node("root", "alice", "bob"),
		node("alice", "", ""),
		node("bob", "", ""),
	}
	s.Packages = []models.UserPackage{
		unlocked("top", 3),
		unlocked("root", 3),
	}
	return s, week
}
