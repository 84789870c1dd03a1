package commission

import (
	"context"
	"fmt"
	"time"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

func (c *Calculation) markFinalized(at time.Time) {
	c.Finalized = true
	c.FinalizedAt = &at
	markFinalized(c.Settlements, at)
	for i := range c.Volumes {
		c.Volumes[i].IsFinalized = true
	}
}

// Batch is everything the calculation writes, as one unit.
func (c *Calculation) Batch() *WeekBatch {
	b := &WeekBatch{
		Week:        c.Week,
		Finalize:    c.Finalized,
		Run:         c.Run(),
		Entries:     c.Entries,
		Settlements: c.Settlements,
		Volumes:     c.Volumes,
	}
	for _, x := range c.Exclusions {
		b.Exclusions = append(b.Exclusions, models.SettlementExclusion{
			RunID:     c.RunID,
			WeekStart: c.Week.Start,
			UserID:    x.UserID,
			Stage:     x.Stage,
			Reason:    x.Reason,
		})
	}
	if !c.Finalized {
		return b
	}
	for _, r := range c.Ranks {
		if !r.Changed {
			continue
		}
		b.RankChanges = append(b.RankChanges, models.RankHistory{
			UserID:          r.UserID,
			WeekStart:       c.Week.Start,
			FromLevel:       r.PreviousLevel,
			ToLevel:         r.Level,
			PersonalSales:   r.Metrics.PersonalSales,
			TeamSales:       r.Metrics.TeamSales,
			LeftVolume:      r.Metrics.LeftVolume,
			RightVolume:     r.Metrics.RightVolume,
			Hashrate:        r.Metrics.Hashrate,
			DirectReferrals: r.Metrics.DirectReferrals,
		})
		b.UserRanks = append(b.UserRanks, models.UserRank{UserID: r.UserID, Level: r.Level})
	}
	b.NodeVolumes = c.NodeVolumes
	return b
}

// Run is the header row of the calculation.
func (c *Calculation) Run() models.SettlementRun {
	s := c.Scale
	return models.SettlementRun{
		RunID:           c.RunID,
		WeekStart:       c.Week.Start,
		SalesVolume:     c.Sales.SV,
		DirectTotal:     s.Scaled[models.CommissionDirect],
		BinaryTotal:     s.Scaled[models.CommissionBinary],
		OverrideTotal:   s.Scaled[models.CommissionOverride],
		Total:           s.Total,
		DirectScale:     s.PoolFactors[models.CommissionDirect],
		BinaryScale:     s.PoolFactors[models.CommissionBinary],
		OverrideScale:   s.PoolFactors[models.CommissionOverride],
		GlobalScale:     s.GlobalFactor,
		Commitment:      c.Commitment,
		SettlementCount: len(c.Settlements),
		EntryCount:      len(c.Entries),
		ExclusionCount:  len(c.Exclusions),
		IsFinalized:     c.Finalized,
		FinalizedAt:     c.FinalizedAt,
	}
}

// fromRun rebuilds a calculation from stored rows. Pool caps and unscaled
// totals are not stored and stay empty.
func fromRun(week Week, run *models.SettlementRun, settlements []models.WeeklySettlement,
	entries []models.CommissionEntry, exclusions []models.SettlementExclusion) *Calculation {
	calc := &Calculation{
		RunID:       run.RunID,
		Week:        week,
		Sales:       SalesSummary{Week: week, SV: run.SalesVolume},
		Entries:     entries,
		Settlements: settlements,
		Commitment:  run.Commitment,
		Persisted:   true,
		Finalized:   run.IsFinalized,
		FinalizedAt: run.FinalizedAt,
		FromStore:   true,
		Scale: ScaleResult{
			SV: run.SalesVolume,
			PoolFactors: map[models.CommissionType]decimal.Decimal{
				models.CommissionDirect:   run.DirectScale,
				models.CommissionBinary:   run.BinaryScale,
				models.CommissionOverride: run.OverrideScale,
			},
			Scaled: map[models.CommissionType]decimal.Decimal{
				models.CommissionDirect:   run.DirectTotal,
				models.CommissionBinary:   run.BinaryTotal,
				models.CommissionOverride: run.OverrideTotal,
			},
			GlobalFactor: run.GlobalScale,
			Total:        run.Total,
		},
	}
	for _, x := range exclusions {
		calc.Exclusions = append(calc.Exclusions, Exclusion{UserID: x.UserID, Stage: x.Stage, Reason: x.Reason})
	}
	return calc
}

// loadStored returns the persisted run of the week, or nil when there is
// none (or, with finalizedOnly, when it is still pending).
func (e *Engine) loadStored(ctx context.Context, week Week, finalizedOnly bool) (*Calculation, error) {
	run, err := e.store.GetRun(ctx, week)
	if err != nil {
		return nil, fmt.Errorf("loadStored %s: %w", week, err)
	}
	if run == nil || (finalizedOnly && !run.IsFinalized) {
		return nil, nil
	}
	settlements, err := e.store.ListSettlements(ctx, week)
	if err != nil {
		return nil, fmt.Errorf("loadStored %s: settlements: %w", week, err)
	}
	entries, _, err := e.store.ListEntries(ctx, EntryQuery{Week: week})
	if err != nil {
		return nil, fmt.Errorf("loadStored %s: entries: %w", week, err)
	}
	exclusions, err := e.store.ListExclusions(ctx, week)
	if err != nil {
		return nil, fmt.Errorf("loadStored %s: exclusions: %w", week, err)
	}
	return fromRun(week, run, settlements, entries, exclusions), nil
}

// Stored returns the persisted run of a week, pending or finalized.
func (e *Engine) Stored(ctx context.Context, weekStart string) (*Calculation, error) {
	week, err := ParseWeek(weekStart)
	if err != nil {
		return nil, err
	}
	calc, err := e.loadStored(ctx, week, false)
	if err != nil {
		return nil, err
	}
	if calc == nil {
		return nil, fmt.Errorf("Stored %s: %w", week, ErrWeekNotFound)
	}
	return calc, nil
}

// Entries pages through the stored entries of a week.
func (e *Engine) Entries(ctx context.Context, q EntryQuery) ([]models.CommissionEntry, int64, error) {
	return e.store.ListEntries(ctx, q)
}

// Sales aggregates the week's eligible sales without computing commissions.
func (e *Engine) Sales(ctx context.Context, weekStart string) (SalesSummary, error) {
	week, err := ParseWeek(weekStart)
	if err != nil {
		return SalesSummary{}, err
	}
	settings, _, err := e.store.LoadSettings(ctx)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("Sales %s: load settings: %w", week, err)
	}
	if settings == nil {
		return SalesSummary{}, fmt.Errorf("Sales %s: %w", week, ErrConfigMissing)
	}
	currency := settings.Currency
	if currency == "" {
		currency = "USD"
	}
	txs, err := e.store.ListTransactions(ctx, week)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("Sales %s: %w", week, err)
	}
	return Aggregate(week, txs, currency), nil
}

// Proof returns the inclusion proof of a user's settlement in a finalized
// week, checked against the stored commitment.
func (e *Engine) Proof(ctx context.Context, weekStart, userID string) (*InclusionProof, error) {
	week, err := ParseWeek(weekStart)
	if err != nil {
		return nil, err
	}
	run, err := e.store.GetRun(ctx, week)
	if err != nil {
		return nil, fmt.Errorf("Proof %s: %w", week, err)
	}
	if run == nil {
		return nil, fmt.Errorf("Proof %s: %w", week, ErrWeekNotFound)
	}
	if !run.IsFinalized {
		return nil, fmt.Errorf("Proof %s: %w", week, ErrWeekNotFinalized)
	}
	settlements, err := e.store.ListSettlements(ctx, week)
	if err != nil {
		return nil, fmt.Errorf("Proof %s: %w", week, err)
	}
	proof, err := ProveInclusion(week, settlements, userID)
	if err != nil {
		return nil, err
	}
	if proof.Commitment != run.Commitment {
		return nil, fmt.Errorf("Proof %s: stored commitment %s does not match settlements: %w", week, run.Commitment, ErrCommitmentMismatch)
	}
	return proof, nil
}
