package commission

import (
	"context"
	"time"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// Store is everything the engine reads and writes. GetRun returns nil, nil
// when the week has never been persisted.
type Store interface {
	LoadSettings(ctx context.Context) (*models.CommissionSettings, []models.RankDefinition, error)
	ListTransactions(ctx context.Context, week Week) ([]models.SalesTransaction, error)
	PersonalSalesBefore(ctx context.Context, before time.Time, currency string) (map[string]decimal.Decimal, error)
	ListReferralEdges(ctx context.Context) ([]models.ReferralEdge, error)
	ListBinaryNodes(ctx context.Context) ([]models.BinaryNode, error)
	ListGhostCredits(ctx context.Context, week Week) ([]models.GhostVolumeCredit, error)
	// ListFinalizedVolumes returns finalized ledger rows with from <= week < to.
	ListFinalizedVolumes(ctx context.Context, from, to time.Time) ([]models.BinaryVolumeEntry, error)
	// LatestCarry returns, per (user, leg), the newest finalized ledger row of
	// a week before the given time.
	LatestCarry(ctx context.Context, before time.Time) ([]models.BinaryVolumeEntry, error)
	ListUserPackages(ctx context.Context) ([]models.UserPackage, error)
	ListUserRanks(ctx context.Context) ([]models.UserRank, error)

	GetRun(ctx context.Context, week Week) (*models.SettlementRun, error)
	ListRuns(ctx context.Context) ([]models.SettlementRun, error)
	ListSettlements(ctx context.Context, week Week) ([]models.WeeklySettlement, error)
	ListEntries(ctx context.Context, q EntryQuery) ([]models.CommissionEntry, int64, error)
	ListExclusions(ctx context.Context, week Week) ([]models.SettlementExclusion, error)

	// SaveWeek writes a batch atomically. It returns ErrWeekFinalized without
	// writing anything when the week was finalized in the meantime.
	SaveWeek(ctx context.Context, batch *WeekBatch) error
}

// EntryQuery filters stored commission entries. Zero values mean "any";
// a zero Limit returns every match.
type EntryQuery struct {
	Week   Week
	UserID string
	Type   models.CommissionType
	Offset int
	Limit  int
}

// NodeVolume is the posted leg volume to add to a binary node's running totals.
type NodeVolume struct {
	UserID string
	Left   decimal.Decimal
	Right  decimal.Decimal
}

// WeekBatch is the unit of persistence for one week. Either all of it is
// written or none of it.
type WeekBatch struct {
	Week        Week
	Finalize    bool
	Run         models.SettlementRun
	Entries     []models.CommissionEntry
	Settlements []models.WeeklySettlement
	Volumes     []models.BinaryVolumeEntry
	Exclusions  []models.SettlementExclusion

	// Written only when Finalize is set.
	RankChanges []models.RankHistory
	UserRanks   []models.UserRank
	NodeVolumes []NodeVolume
}
