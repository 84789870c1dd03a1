package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionType names a commission pool.
type CommissionType string

const (
	CommissionDirect   CommissionType = "direct"
	CommissionBinary   CommissionType = "binary"
	CommissionOverride CommissionType = "override"
)

// CommissionTypes lists the pools in settlement order.
var CommissionTypes = []CommissionType{CommissionDirect, CommissionBinary, CommissionOverride}

const (
	EntryStatusPending   = "pending"
	EntryStatusPaid      = "paid"
	EntryStatusCancelled = "cancelled"
)

// CommissionEntry is one payable line. (week, type, user, source, tier) is unique.
type CommissionEntry struct {
	ID                uint            `gorm:"primarykey" json:"id"`
	WeekStart         time.Time       `gorm:"type:date;not null;uniqueIndex:idx_commission_entry_key;index" json:"week_start"`
	Type              CommissionType  `gorm:"size:16;not null;uniqueIndex:idx_commission_entry_key" json:"type"`
	UserID            string          `gorm:"size:64;not null;uniqueIndex:idx_commission_entry_key;index" json:"user_id"`
	SourceRef         string          `gorm:"size:96;not null;uniqueIndex:idx_commission_entry_key" json:"source_ref"`
	Tier              int             `gorm:"not null;uniqueIndex:idx_commission_entry_key" json:"tier"`
	SourceUserID      string          `gorm:"size:64" json:"source_user_id"`
	BaseAmount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"base_amount"`
	PoolScaleFactor   decimal.Decimal `gorm:"type:numeric(24,16);not null" json:"pool_scale_factor"`
	GlobalScaleFactor decimal.Decimal `gorm:"type:numeric(24,16);not null" json:"global_scale_factor"`
	ScaledAmount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"scaled_amount"`
	Status            string          `gorm:"size:16;default:'pending'" json:"status"`
	CreatedAt         time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (CommissionEntry) TableName() string {
	return "commission_entries"
}

// WeeklySettlement is the per-user total for a week.
type WeeklySettlement struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	UserID        string          `gorm:"size:64;not null;uniqueIndex:idx_weekly_settlement_user_week" json:"user_id"`
	WeekStart     time.Time       `gorm:"type:date;not null;uniqueIndex:idx_weekly_settlement_user_week;index" json:"week_start"`
	DirectTotal   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"direct_total"`
	BinaryTotal   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"binary_total"`
	OverrideTotal decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"override_total"`
	Total         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total"`
	CapApplied    bool            `gorm:"default:false" json:"cap_applied"`
	LeafHash      string          `gorm:"size:64" json:"leaf_hash"`
	IsFinalized   bool            `gorm:"default:false" json:"is_finalized"`
	FinalizedAt   *time.Time      `json:"finalized_at"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (WeeklySettlement) TableName() string {
	return "weekly_settlements"
}

// SettlementRun is the header row of a persisted week.
type SettlementRun struct {
	ID                uint            `gorm:"primarykey" json:"id"`
	RunID             string          `gorm:"size:36;not null" json:"run_id"`
	WeekStart         time.Time       `gorm:"type:date;not null;uniqueIndex" json:"week_start"`
	SalesVolume       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"sales_volume"`
	DirectTotal       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"direct_total"`
	BinaryTotal       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"binary_total"`
	OverrideTotal     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"override_total"`
	Total             decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total"`
	DirectScale       decimal.Decimal `gorm:"type:numeric(24,16)" json:"direct_scale"`
	BinaryScale       decimal.Decimal `gorm:"type:numeric(24,16)" json:"binary_scale"`
	OverrideScale     decimal.Decimal `gorm:"type:numeric(24,16)" json:"override_scale"`
	GlobalScale       decimal.Decimal `gorm:"type:numeric(24,16)" json:"global_scale"`
	Commitment        string          `gorm:"size:64" json:"commitment"`
	SettlementCount   int             `json:"settlement_count"`
	EntryCount        int             `json:"entry_count"`
	ExclusionCount    int             `json:"exclusion_count"`
	IsFinalized       bool            `gorm:"default:false" json:"is_finalized"`
	FinalizedAt       *time.Time      `json:"finalized_at"`
	CreatedAt         time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (SettlementRun) TableName() string {
	return "settlement_runs"
}

// SettlementExclusion records a user left out of a run because their part of
// the graph could not be computed. Kept for manual remediation.
type SettlementExclusion struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	RunID     string    `gorm:"size:36;not null;index" json:"run_id"`
	WeekStart time.Time `gorm:"type:date;not null;index" json:"week_start"`
	UserID    string    `gorm:"size:64;not null" json:"user_id"`
	Stage     string    `gorm:"size:32;not null" json:"stage"`
	Reason    string    `gorm:"type:text" json:"reason"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (SettlementExclusion) TableName() string {
	return "settlement_exclusions"
}
