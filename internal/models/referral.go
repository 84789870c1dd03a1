package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Leg identifies one side of a binary placement.
type Leg string

const (
	LegLeft  Leg = "left"
	LegRight Leg = "right"
)

// Other returns the opposite leg.
func (l Leg) Other() Leg {
	if l == LegLeft {
		return LegRight
	}
	return LegLeft
}

func (l Leg) Valid() bool {
	return l == LegLeft || l == LegRight
}

// ReferralEdge links a sponsor to a referee. Level 1 edges form the sponsor chain.
type ReferralEdge struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	SponsorID string    `gorm:"size:64;not null;index" json:"sponsor_id"`
	RefereeID string    `gorm:"size:64;not null;index" json:"referee_id"`
	Level     int       `gorm:"not null;default:1" json:"level"`
	BinaryLeg Leg       `gorm:"size:8" json:"binary_leg"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (ReferralEdge) TableName() string {
	return "referral_edges"
}

// BinaryNode is a user's position in the binary placement tree.
type BinaryNode struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       string          `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	LeftChildID  *string         `gorm:"size:64;column:left_child_id" json:"left_child_id"`
	RightChildID *string         `gorm:"size:64;column:right_child_id" json:"right_child_id"`
	LeftVolume   decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"left_volume"`
	RightVolume  decimal.Decimal `gorm:"type:numeric(20,2);default:0" json:"right_volume"`
	LeftCount    int             `gorm:"default:0" json:"left_count"`
	RightCount   int             `gorm:"default:0" json:"right_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (BinaryNode) TableName() string {
	return "binary_nodes"
}

// Child returns the child user id placed on the given leg, or "".
func (n BinaryNode) Child(leg Leg) string {
	var p *string
	if leg == LegLeft {
		p = n.LeftChildID
	} else {
		p = n.RightChildID
	}
	if p == nil {
		return ""
	}
	return *p
}
