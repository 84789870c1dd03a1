package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesTransaction is a package purchase written by the payment pipeline.
// Rows are immutable once created.
type SalesTransaction struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	UserID     string          `gorm:"size:64;not null;index" json:"user_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency   string          `gorm:"size:8;not null;default:'USD'" json:"currency"`
	WeekStart  time.Time       `gorm:"type:date;not null;index" json:"week_start"`
	IsEligible bool            `gorm:"default:true" json:"is_eligible"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (SalesTransaction) TableName() string {
	return "sales_transactions"
}
