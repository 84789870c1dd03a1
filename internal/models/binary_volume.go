package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BinaryVolumeEntry is one (user, leg, week) row of the volume ledger.
// CarryOut of a finalized week is read back as CarryIn of the next settled week.
type BinaryVolumeEntry struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	UserID          string          `gorm:"size:64;not null;uniqueIndex:idx_binary_volume_user_leg_week" json:"user_id"`
	Leg             Leg             `gorm:"size:8;not null;uniqueIndex:idx_binary_volume_user_leg_week" json:"leg"`
	WeekStart       time.Time       `gorm:"type:date;not null;uniqueIndex:idx_binary_volume_user_leg_week;index" json:"week_start"`
	PostedVolume    decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"posted_volume"`
	GhostVolume     decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"ghost_volume"`
	CarryIn         decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"carry_in"`
	Total           decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"total"`
	MatchedVolume   decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"matched_volume"`
	PaidVolume      decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"paid_volume"`
	CarryOut        decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"carry_out"`
	DiscardedVolume decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"discarded_volume"`
	FlushedVolume   decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"flushed_volume"`
	InactiveWeeks   int             `gorm:"default:0" json:"inactive_weeks"`
	IsFinalized     bool            `gorm:"default:false" json:"is_finalized"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (BinaryVolumeEntry) TableName() string {
	return "binary_volume_entries"
}

// Ghost credit statuses. The stored status is informational only; the engine
// derives it from the credit window every time.
const (
	GhostStatusActive  = "active"
	GhostStatusExpired = "expired"
)

// GhostVolumeCredit is a temporary volume bonus on one leg, granted at purchase.
type GhostVolumeCredit struct {
	ID        uint            `gorm:"primarykey" json:"id"`
	UserID    string          `gorm:"size:64;not null;index" json:"user_id"`
	Leg       Leg             `gorm:"size:8;not null" json:"leg"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	StartsAt  time.Time       `gorm:"not null;index" json:"starts_at"`
	ExpiresAt time.Time       `gorm:"not null;index" json:"expires_at"`
	Status    string          `gorm:"size:16;default:'active'" json:"status"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GhostVolumeCredit) TableName() string {
	return "ghost_volume_credits"
}

// StatusAt reports whether the credit is active at t. Expiry is strictly by
// elapsed time: the credit is expired from ExpiresAt onwards.
func (g GhostVolumeCredit) StatusAt(t time.Time) string {
	if t.Before(g.StartsAt) || !t.Before(g.ExpiresAt) {
		return GhostStatusExpired
	}
	return GhostStatusActive
}
