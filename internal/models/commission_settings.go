package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Global scale policies.
const (
	GlobalScaleAllPools       = "all_pools"
	GlobalScaleBinaryOverride = "binary_override"
)

// Ghost expiry policies.
const (
	GhostExpiryProrate      = "prorate"
	GhostExpiryAllOrNothing = "all_or_nothing"
)

// CommissionSettings holds rates, caps and policies. Only the active row is
// read by the settlement engine.
type CommissionSettings struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	IsActive bool   `gorm:"default:true;index" json:"is_active"`
	Currency string `gorm:"size:8;not null;default:'USD'" json:"currency"`

	DirectTier1Rate decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"direct_tier1_rate"`
	DirectTier2Rate decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"direct_tier2_rate"`
	DirectTier3Rate decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"direct_tier3_rate"`

	BinaryRate    decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"binary_rate"`
	BinaryHardCap decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"binary_hard_cap"`

	OverrideLevel1Rate    decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"override_level1_rate"`
	OverrideLevel2Rate    decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"override_level2_rate"`
	OverrideLevel3Rate    decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"override_level3_rate"`
	OverrideLevel1MinRank int             `gorm:"default:1" json:"override_level1_min_rank"`
	OverrideLevel2MinRank int             `gorm:"default:1" json:"override_level2_min_rank"`
	OverrideLevel3MinRank int             `gorm:"default:1" json:"override_level3_min_rank"`

	DirectPoolPct   decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"direct_pool_pct"`
	BinaryPoolPct   decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"binary_pool_pct"`
	OverridePoolPct decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"override_pool_pct"`
	GlobalPoolPct   decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"global_pool_pct"`

	CarryMultiplier      decimal.Decimal `gorm:"type:numeric(10,4);default:5" json:"carry_multiplier"`
	CarryAverageWeeks    int             `gorm:"default:4" json:"carry_average_weeks"`
	InactivityFlushWeeks int             `gorm:"default:8" json:"inactivity_flush_weeks"`
	GhostWindowDays      int             `gorm:"default:10" json:"ghost_window_days"`

	GlobalScalePolicy string `gorm:"size:32;default:'all_pools'" json:"global_scale_policy"`
	GhostExpiryPolicy string `gorm:"size:32;default:'prorate'" json:"ghost_expiry_policy"`
	StickyRanks       bool   `gorm:"default:false" json:"sticky_ranks"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CommissionSettings) TableName() string {
	return "commission_settings"
}

// DefaultCommissionSettings returns the launch configuration.
func DefaultCommissionSettings() CommissionSettings {
	return CommissionSettings{
		IsActive:              true,
		Currency:              "USD",
		DirectTier1Rate:       decimal.RequireFromString("0.10"),
		DirectTier2Rate:       decimal.RequireFromString("0.05"),
		DirectTier3Rate:       decimal.RequireFromString("0.03"),
		BinaryRate:            decimal.RequireFromString("0.10"),
		BinaryHardCap:         decimal.RequireFromString("25000"),
		OverrideLevel1Rate:    decimal.RequireFromString("0.10"),
		OverrideLevel2Rate:    decimal.RequireFromString("0.05"),
		OverrideLevel3Rate:    decimal.RequireFromString("0.03"),
		OverrideLevel1MinRank: 1,
		OverrideLevel2MinRank: 3,
		OverrideLevel3MinRank: 5,
		DirectPoolPct:         decimal.RequireFromString("0.20"),
		BinaryPoolPct:         decimal.RequireFromString("0.17"),
		OverridePoolPct:       decimal.RequireFromString("0.03"),
		GlobalPoolPct:         decimal.RequireFromString("0.40"),
		CarryMultiplier:       decimal.NewFromInt(5),
		CarryAverageWeeks:     4,
		InactivityFlushWeeks:  8,
		GhostWindowDays:       10,
		GlobalScalePolicy:     GlobalScaleAllPools,
		GhostExpiryPolicy:     GhostExpiryProrate,
	}
}
