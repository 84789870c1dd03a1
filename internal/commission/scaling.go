package commission

import (
	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// ScaleResult describes how the week's pools were brought under their caps.
type ScaleResult struct {
	SV           decimal.Decimal
	PoolCaps     map[models.CommissionType]decimal.Decimal
	Unscaled     map[models.CommissionType]decimal.Decimal
	PoolFactors  map[models.CommissionType]decimal.Decimal
	GlobalCap    decimal.Decimal
	PreGlobal    decimal.Decimal
	GlobalFactor decimal.Decimal
	Scaled       map[models.CommissionType]decimal.Decimal
	Total        decimal.Decimal
}

// capOf is pct x SV rounded down to cents.
func capOf(pct, sv decimal.Decimal) decimal.Decimal {
	return floorMoney(pct.Mul(sv))
}

// factorFor is min(1, budget / total); an empty pool is never scaled.
func factorFor(budget, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return one
	}
	if budget.IsNegative() {
		return zero
	}
	return minDecimal(one, budget.Div(total))
}

// globalApplies reports whether the global factor touches a pool.
func globalApplies(policy string, t models.CommissionType) bool {
	if policy == models.GlobalScaleBinaryOverride {
		return t != models.CommissionDirect
	}
	return true
}

// ApplyCaps scales every entry in place. Each pool is first held to
// pool_pct x SV, then the result is held to global_pct x SV. The final amount
// of an entry is base x poolFactor x globalFactor rounded down to cents, or
// the base itself when neither factor reduced it. Rounding down keeps every
// pool and the grand total at or below its cap; the shortfall is under one
// cent per scaled entry.
func ApplyCaps(snap *Snapshot, sv decimal.Decimal, entries []models.CommissionEntry) ScaleResult {
	res := ScaleResult{
		SV:          sv,
		PoolCaps:    make(map[models.CommissionType]decimal.Decimal),
		Unscaled:    make(map[models.CommissionType]decimal.Decimal),
		PoolFactors: make(map[models.CommissionType]decimal.Decimal),
		Scaled:      make(map[models.CommissionType]decimal.Decimal),
		GlobalCap:   capOf(snap.GlobalPct, sv),
		PreGlobal:   zero,
		Total:       zero,
	}
	for _, t := range models.CommissionTypes {
		res.PoolCaps[t] = capOf(snap.PoolPct[t], sv)
		res.Unscaled[t] = zero
		res.Scaled[t] = zero
	}
	for _, e := range entries {
		res.Unscaled[e.Type] = res.Unscaled[e.Type].Add(e.BaseAmount)
	}
	for _, t := range models.CommissionTypes {
		res.PoolFactors[t] = factorFor(res.PoolCaps[t], res.Unscaled[t])
	}

	// Exact pool-scaled amounts, before any rounding.
	exact := make([]decimal.Decimal, len(entries))
	for i, e := range entries {
		exact[i] = e.BaseAmount.Mul(res.PoolFactors[e.Type])
	}

	budget := res.GlobalCap
	subject := zero
	for i, e := range entries {
		if globalApplies(snap.GlobalScalePolicy, e.Type) {
			subject = subject.Add(exact[i])
			continue
		}
		budget = budget.Sub(final(e.BaseAmount, res.PoolFactors[e.Type], one))
	}
	res.PreGlobal = sumDecimals(exact...)
	res.GlobalFactor = factorFor(budget, subject)

	for i := range entries {
		e := &entries[i]
		g := one
		if globalApplies(snap.GlobalScalePolicy, e.Type) {
			g = res.GlobalFactor
		}
		e.PoolScaleFactor = res.PoolFactors[e.Type]
		e.GlobalScaleFactor = g
		e.ScaledAmount = final(e.BaseAmount, e.PoolScaleFactor, g)
		res.Scaled[e.Type] = res.Scaled[e.Type].Add(e.ScaledAmount)
	}
	for _, t := range models.CommissionTypes {
		res.Total = res.Total.Add(res.Scaled[t])
	}
	return res
}

func final(base, poolFactor, globalFactor decimal.Decimal) decimal.Decimal {
	if poolFactor.Equal(one) && globalFactor.Equal(one) {
		return base
	}
	return floorMoney(base.Mul(poolFactor).Mul(globalFactor))
}
