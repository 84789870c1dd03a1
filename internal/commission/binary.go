package commission

import (
	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

const binarySourceRef = "weak_leg"

// BinaryResult is a user's binary payout before pool scaling.
type BinaryResult struct {
	UserID     string
	Matched    decimal.Decimal
	Earned     decimal.Decimal
	Paid       decimal.Decimal
	PaidVolume decimal.Decimal
	Cap        decimal.Decimal
	Capped     bool
}

// BinaryCap is the smallest positive cap among the rank's weekly and hard
// caps and the absolute hard cap. Zero means uncapped.
func (s *Snapshot) BinaryCap(rankLevel int) decimal.Decimal {
	limit := zero
	consider := func(c decimal.Decimal) {
		if !c.IsPositive() {
			return
		}
		if limit.IsZero() || c.LessThan(limit) {
			limit = c
		}
	}
	if r := s.Rank(rankLevel); r != nil {
		consider(r.WeeklyCap)
		consider(r.HardCap)
	}
	consider(s.BinaryHardCap)
	return limit
}

// ComputeBinary pays the rate on the weak-leg total. Carry-in only ever holds
// volume that was never paid, so the full weak total is payable. Earnings
// above the cap are not paid; the matching volume stays on the legs as
// carry-forward.
func ComputeBinary(snap *Snapshot, v *UserVolume, rankLevel int) BinaryResult {
	matched := v.WeakTotal()
	res := BinaryResult{
		UserID:     v.UserID,
		Matched:    matched,
		Earned:     roundMoney(matched.Mul(snap.BinaryRate)),
		PaidVolume: matched,
		Cap:        snap.BinaryCap(rankLevel),
	}
	res.Paid = res.Earned
	if res.Cap.IsPositive() && res.Earned.GreaterThan(res.Cap) {
		res.Capped = true
		res.Paid = res.Cap
		res.PaidVolume = minDecimal(roundMoney(res.Cap.Div(snap.BinaryRate)), matched)
	}
	return res
}

// Entry returns the commission line for the result, or false when nothing is paid.
func (r BinaryResult) Entry(week Week) (models.CommissionEntry, bool) {
	if !r.Paid.IsPositive() {
		return models.CommissionEntry{}, false
	}
	return models.CommissionEntry{
		WeekStart:  week.Start,
		Type:       models.CommissionBinary,
		UserID:     r.UserID,
		SourceRef:  binarySourceRef,
		BaseAmount: r.Paid,
		Status:     models.EntryStatusPending,
	}, true
}
