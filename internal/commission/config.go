package commission

import (
	"fmt"
	"sort"
	"time"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// MaxTiers is the depth of the sponsor chain for direct and override commissions.
const MaxTiers = 3

// OverrideLevel is the rate and rank gate for one upline level.
type OverrideLevel struct {
	Rate    decimal.Decimal
	MinRank int
}

// Snapshot is the configuration of a single run. It is loaded once before
// any computation and never re-read mid-run.
type Snapshot struct {
	Currency          string
	DirectRates       [MaxTiers]decimal.Decimal
	BinaryRate        decimal.Decimal
	BinaryHardCap     decimal.Decimal
	OverrideLevels    [MaxTiers]OverrideLevel
	PoolPct           map[models.CommissionType]decimal.Decimal
	GlobalPct         decimal.Decimal
	CarryMultiplier   decimal.Decimal
	CarryAverageWeeks int
	InactivityWeeks   int
	GhostWindow       time.Duration
	GlobalScalePolicy string
	GhostExpiryPolicy string
	StickyRanks       bool

	// Ranks ordered from highest level to lowest.
	Ranks []models.RankDefinition
}

// NewSnapshot copies settings and the rank table into an immutable snapshot
// and validates it.
func NewSnapshot(s *models.CommissionSettings, ranks []models.RankDefinition) (*Snapshot, error) {
	if s == nil {
		return nil, ErrConfigMissing
	}
	snap := &Snapshot{
		Currency:      s.Currency,
		DirectRates:   [MaxTiers]decimal.Decimal{s.DirectTier1Rate, s.DirectTier2Rate, s.DirectTier3Rate},
		BinaryRate:    s.BinaryRate,
		BinaryHardCap: s.BinaryHardCap,
		OverrideLevels: [MaxTiers]OverrideLevel{
			{Rate: s.OverrideLevel1Rate, MinRank: s.OverrideLevel1MinRank},
			{Rate: s.OverrideLevel2Rate, MinRank: s.OverrideLevel2MinRank},
			{Rate: s.OverrideLevel3Rate, MinRank: s.OverrideLevel3MinRank},
		},
		PoolPct: map[models.CommissionType]decimal.Decimal{
			models.CommissionDirect:   s.DirectPoolPct,
			models.CommissionBinary:   s.BinaryPoolPct,
			models.CommissionOverride: s.OverridePoolPct,
		},
		GlobalPct:         s.GlobalPoolPct,
		CarryMultiplier:   s.CarryMultiplier,
		CarryAverageWeeks: s.CarryAverageWeeks,
		InactivityWeeks:   s.InactivityFlushWeeks,
		GhostWindow:       time.Duration(s.GhostWindowDays) * 24 * time.Hour,
		GlobalScalePolicy: s.GlobalScalePolicy,
		GhostExpiryPolicy: s.GhostExpiryPolicy,
		StickyRanks:       s.StickyRanks,
	}
	if snap.Currency == "" {
		snap.Currency = "USD"
	}
	if snap.GlobalScalePolicy == "" {
		snap.GlobalScalePolicy = models.GlobalScaleAllPools
	}
	if snap.GhostExpiryPolicy == "" {
		snap.GhostExpiryPolicy = models.GhostExpiryProrate
	}

	snap.Ranks = make([]models.RankDefinition, len(ranks))
	copy(snap.Ranks, ranks)
	sort.Slice(snap.Ranks, func(i, j int) bool {
		return snap.Ranks[i].Level > snap.Ranks[j].Level
	})

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Validate rejects settings the engine cannot run with.
func (s *Snapshot) Validate() error {
	rate := func(name string, d decimal.Decimal) error {
		if d.IsNegative() || d.GreaterThan(one) {
			return fmt.Errorf("%s must be within [0, 1]: %w", name, ErrInvalidConfig)
		}
		return nil
	}
	for i, r := range s.DirectRates {
		if err := rate(fmt.Sprintf("direct tier %d rate", i+1), r); err != nil {
			return err
		}
	}
	for i, l := range s.OverrideLevels {
		if err := rate(fmt.Sprintf("override level %d rate", i+1), l.Rate); err != nil {
			return err
		}
	}
	if !s.BinaryRate.IsPositive() || s.BinaryRate.GreaterThan(one) {
		return fmt.Errorf("binary rate must be within (0, 1]: %w", ErrInvalidConfig)
	}
	for _, t := range models.CommissionTypes {
		pct, ok := s.PoolPct[t]
		if !ok || !pct.IsPositive() || pct.GreaterThan(one) {
			return fmt.Errorf("%s pool pct must be within (0, 1]: %w", t, ErrInvalidConfig)
		}
	}
	if !s.GlobalPct.IsPositive() || s.GlobalPct.GreaterThan(one) {
		return fmt.Errorf("global pool pct must be within (0, 1]: %w", ErrInvalidConfig)
	}
	switch s.GlobalScalePolicy {
	case models.GlobalScaleAllPools:
	case models.GlobalScaleBinaryOverride:
		if !s.PoolPct[models.CommissionDirect].LessThan(s.GlobalPct) {
			return fmt.Errorf("direct pool pct must be below global pct under %s: %w", s.GlobalScalePolicy, ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown global scale policy %q: %w", s.GlobalScalePolicy, ErrInvalidConfig)
	}
	switch s.GhostExpiryPolicy {
	case models.GhostExpiryProrate, models.GhostExpiryAllOrNothing:
	default:
		return fmt.Errorf("unknown ghost expiry policy %q: %w", s.GhostExpiryPolicy, ErrInvalidConfig)
	}
	if s.CarryMultiplier.IsNegative() {
		return fmt.Errorf("carry multiplier must not be negative: %w", ErrInvalidConfig)
	}
	if s.CarryAverageWeeks < 1 {
		return fmt.Errorf("carry average weeks must be at least 1: %w", ErrInvalidConfig)
	}
	if s.InactivityWeeks < 1 {
		return fmt.Errorf("inactivity flush weeks must be at least 1: %w", ErrInvalidConfig)
	}
	if s.GhostWindow <= 0 {
		return fmt.Errorf("ghost window must be positive: %w", ErrInvalidConfig)
	}
	seen := make(map[int]bool, len(s.Ranks))
	for _, r := range s.Ranks {
		if r.Level < 1 {
			return fmt.Errorf("rank %q has level %d, levels start at 1: %w", r.Name, r.Level, ErrInvalidConfig)
		}
		if seen[r.Level] {
			return fmt.Errorf("duplicate rank level %d: %w", r.Level, ErrInvalidConfig)
		}
		seen[r.Level] = true
	}
	return nil
}

// Rank returns the definition for a level, or nil for unranked users.
func (s *Snapshot) Rank(level int) *models.RankDefinition {
	for i := range s.Ranks {
		if s.Ranks[i].Level == level {
			return &s.Ranks[i]
		}
	}
	return nil
}
