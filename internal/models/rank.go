package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RankDefinition is one row of the admin-configured rank table.
// A zero cap means "no cap at this rank".
type RankDefinition struct {
	ID                 uint            `gorm:"primarykey" json:"id"`
	Level              int             `gorm:"not null;uniqueIndex" json:"level"`
	Name               string          `gorm:"size:64;not null" json:"name"`
	MinPersonalSales   decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"min_personal_sales"`
	MinTeamSales       decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"min_team_sales"`
	MinLeftVolume      decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"min_left_volume"`
	MinRightVolume     decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"min_right_volume"`
	MinHashrate        decimal.Decimal `gorm:"type:numeric(20,4);default:0" json:"min_hashrate"`
	MinDirectReferrals int             `gorm:"default:0" json:"min_direct_referrals"`
	WeeklyCap          decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"weekly_cap"`
	HardCap            decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"hard_cap"`
	CreatedAt          time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (RankDefinition) TableName() string {
	return "rank_definitions"
}

// UserRank stores the current rank level of a user. Level 0 means unranked.
type UserRank struct {
	UserID    string    `gorm:"size:64;primaryKey" json:"user_id"`
	Level     int       `gorm:"default:0" json:"level"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (UserRank) TableName() string {
	return "user_ranks"
}

// RankHistory records a rank change together with the metrics that caused it.
type RankHistory struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	UserID          string          `gorm:"size:64;not null;index" json:"user_id"`
	WeekStart       time.Time       `gorm:"type:date;not null;index" json:"week_start"`
	FromLevel       int             `json:"from_level"`
	ToLevel         int             `json:"to_level"`
	PersonalSales   decimal.Decimal `gorm:"type:numeric(20,2)" json:"personal_sales"`
	TeamSales       decimal.Decimal `gorm:"type:numeric(20,2)" json:"team_sales"`
	LeftVolume      decimal.Decimal `gorm:"type:numeric(20,2)" json:"left_volume"`
	RightVolume     decimal.Decimal `gorm:"type:numeric(20,2)" json:"right_volume"`
	Hashrate        decimal.Decimal `gorm:"type:numeric(20,4)" json:"hashrate"`
	DirectReferrals int             `json:"direct_referrals"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (RankHistory) TableName() string {
	return "rank_history"
}

// UserPackage is a mining package owned by a user.
type UserPackage struct {
	ID                    uint            `gorm:"primarykey" json:"id"`
	UserID                string          `gorm:"size:64;not null;index" json:"user_id"`
	PackageName           string          `gorm:"size:64" json:"package_name"`
	CommissionUnlockLevel int             `gorm:"default:0" json:"commission_unlock_level"`
	Hashrate              decimal.Decimal `gorm:"type:numeric(20,4);default:0" json:"hashrate"`
	IsActive              bool            `gorm:"default:true" json:"is_active"`
	PurchasedAt           time.Time       `json:"purchased_at"`
}

func (UserPackage) TableName() string {
	return "user_packages"
}
