package commission

import (
	"sort"
	"time"

	"syntarex/internal/models"
)

const factorPlaces = 6

// SettlementView is one user's settlement as returned by the API.
type SettlementView struct {
	UserID     string `json:"userId"`
	Direct     string `json:"direct"`
	Binary     string `json:"binary"`
	Override   string `json:"override"`
	Total      string `json:"total"`
	CapApplied bool   `json:"capApplied"`
	LeafHash   string `json:"leafHash"`
}

// TotalsView carries the week's totals as fixed two-decimal strings.
type TotalsView struct {
	SV                string `json:"SV"`
	Direct            string `json:"T_dir"`
	Binary            string `json:"T_bin"`
	Override          string `json:"T_ov"`
	Total             string `json:"total"`
	GlobalScaleFactor string `json:"globalScaleFactor"`
}

type ScaleFactorsView struct {
	Direct   string `json:"direct"`
	Binary   string `json:"binary"`
	Override string `json:"override"`
	Global   string `json:"global"`
}

// ResultView is the body of a calculation response.
type ResultView struct {
	WeekStart    string           `json:"weekStart"`
	RunID        string           `json:"runId"`
	Persisted    bool             `json:"persisted"`
	Finalized    bool             `json:"finalized"`
	FinalizedAt  *time.Time       `json:"finalizedAt,omitempty"`
	FromStore    bool             `json:"fromStore"`
	Commitment   string           `json:"commitment"`
	Settlements  []SettlementView `json:"settlements"`
	Totals       TotalsView       `json:"totals"`
	ScaleFactors ScaleFactorsView `json:"scaleFactors"`
	Forfeited    string           `json:"forfeitedDirect"`
	RankChanges  []RankResult     `json:"rankChanges"`
	Exclusions   []Exclusion      `json:"exclusions"`
}

// FinalizeView is the body of a finalize response.
type FinalizeView struct {
	WeekStart        string     `json:"weekStart"`
	RunID            string     `json:"runId"`
	Commitment       string     `json:"commitment"`
	SettlementCount  int        `json:"settlementCount"`
	EntryCount       int        `json:"entryCount"`
	ExclusionCount   int        `json:"exclusionCount"`
	Totals           TotalsView `json:"totals"`
	FinalizedAt      *time.Time `json:"finalizedAt,omitempty"`
	AlreadyFinalized bool       `json:"alreadyFinalized"`
}

// SalesView is the aggregated sales of a week.
type SalesView struct {
	WeekStart    string            `json:"weekStart"`
	SV           string            `json:"SV"`
	Transactions int               `json:"transactions"`
	Skipped      int               `json:"skipped"`
	PerUser      map[string]string `json:"perUser"`
}

// EntryView is a stored commission entry.
type EntryView struct {
	ID                uint   `json:"id"`
	WeekStart         string `json:"weekStart"`
	Type              string `json:"type"`
	UserID            string `json:"userId"`
	SourceRef         string `json:"sourceRef"`
	Tier              int    `json:"tier"`
	SourceUserID      string `json:"sourceUserId,omitempty"`
	BaseAmount        string `json:"baseAmount"`
	PoolScaleFactor   string `json:"poolScaleFactor"`
	GlobalScaleFactor string `json:"globalScaleFactor"`
	ScaledAmount      string `json:"scaledAmount"`
	Status            string `json:"status"`
}

func (c *Calculation) Totals() TotalsView {
	return TotalsView{
		SV:                FormatMoney(c.Sales.SV),
		Direct:            FormatMoney(c.Scale.Scaled[models.CommissionDirect]),
		Binary:            FormatMoney(c.Scale.Scaled[models.CommissionBinary]),
		Override:          FormatMoney(c.Scale.Scaled[models.CommissionOverride]),
		Total:             FormatMoney(c.Scale.Total),
		GlobalScaleFactor: FormatMoney(c.Scale.GlobalFactor),
	}
}

func (c *Calculation) View() ResultView {
	v := ResultView{
		WeekStart:   c.Week.Key(),
		RunID:       c.RunID,
		Persisted:   c.Persisted,
		Finalized:   c.Finalized,
		FinalizedAt: c.FinalizedAt,
		FromStore:   c.FromStore,
		Commitment:  c.Commitment,
		Settlements: make([]SettlementView, 0, len(c.Settlements)),
		Totals:      c.Totals(),
		ScaleFactors: ScaleFactorsView{
			Direct:   FormatFactor(c.Scale.PoolFactors[models.CommissionDirect], factorPlaces),
			Binary:   FormatFactor(c.Scale.PoolFactors[models.CommissionBinary], factorPlaces),
			Override: FormatFactor(c.Scale.PoolFactors[models.CommissionOverride], factorPlaces),
			Global:   FormatFactor(c.Scale.GlobalFactor, factorPlaces),
		},
		Forfeited:   FormatMoney(c.Forfeited),
		RankChanges: []RankResult{},
		Exclusions:  []Exclusion{},
	}
	for _, s := range c.Settlements {
		v.Settlements = append(v.Settlements, SettlementView{
			UserID:     s.UserID,
			Direct:     FormatMoney(s.DirectTotal),
			Binary:     FormatMoney(s.BinaryTotal),
			Override:   FormatMoney(s.OverrideTotal),
			Total:      FormatMoney(s.Total),
			CapApplied: s.CapApplied,
			LeafHash:   s.LeafHash,
		})
	}
	sort.Slice(v.Settlements, func(i, j int) bool { return v.Settlements[i].UserID < v.Settlements[j].UserID })
	for _, r := range c.Ranks {
		if r.Changed {
			v.RankChanges = append(v.RankChanges, r)
		}
	}
	v.Exclusions = append(v.Exclusions, c.Exclusions...)
	return v
}

func (c *Calculation) FinalizeView() FinalizeView {
	return FinalizeView{
		WeekStart:        c.Week.Key(),
		RunID:            c.RunID,
		Commitment:       c.Commitment,
		SettlementCount:  len(c.Settlements),
		EntryCount:       len(c.Entries),
		ExclusionCount:   len(c.Exclusions),
		Totals:           c.Totals(),
		FinalizedAt:      c.FinalizedAt,
		AlreadyFinalized: c.AlreadyFinal,
	}
}

func (s SalesSummary) View() SalesView {
	v := SalesView{
		WeekStart:    s.Week.Key(),
		SV:           FormatMoney(s.SV),
		Transactions: len(s.Eligible),
		Skipped:      s.Skipped,
		PerUser:      make(map[string]string, len(s.PerUser)),
	}
	for id, amount := range s.PerUser {
		v.PerUser[id] = FormatMoney(amount)
	}
	return v
}

func NewEntryView(e models.CommissionEntry) EntryView {
	return EntryView{
		ID:                e.ID,
		WeekStart:         WeekOf(e.WeekStart).Key(),
		Type:              string(e.Type),
		UserID:            e.UserID,
		SourceRef:         e.SourceRef,
		Tier:              e.Tier,
		SourceUserID:      e.SourceUserID,
		BaseAmount:        FormatMoney(e.BaseAmount),
		PoolScaleFactor:   FormatFactor(e.PoolScaleFactor, factorPlaces),
		GlobalScaleFactor: FormatFactor(e.GlobalScaleFactor, factorPlaces),
		ScaledAmount:      FormatMoney(e.ScaledAmount),
		Status:            e.Status,
	}
}
