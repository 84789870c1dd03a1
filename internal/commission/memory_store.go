package commission

import (
	"context"
	"sort"
	"sync"
	"time"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. It backs tests and local dry runs.
type MemoryStore struct {
	mu sync.RWMutex

	Settings     *models.CommissionSettings
	Ranks        []models.RankDefinition
	Transactions []models.SalesTransaction
	Edges        []models.ReferralEdge
	Nodes        []models.BinaryNode
	Credits      []models.GhostVolumeCredit
	Packages     []models.UserPackage
	UserRanks    map[string]int

	runs        map[string]models.SettlementRun
	entries     map[string][]models.CommissionEntry
	settlements map[string][]models.WeeklySettlement
	exclusions  map[string][]models.SettlementExclusion
	volumes     map[string][]models.BinaryVolumeEntry
	history     []models.RankHistory
	nextID      uint

	// SaveErr, when set, makes SaveWeek fail without writing.
	SaveErr error
	saves   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		UserRanks:   make(map[string]int),
		runs:        make(map[string]models.SettlementRun),
		entries:     make(map[string][]models.CommissionEntry),
		settlements: make(map[string][]models.WeeklySettlement),
		exclusions:  make(map[string][]models.SettlementExclusion),
		volumes:     make(map[string][]models.BinaryVolumeEntry),
	}
}

func (m *MemoryStore) LoadSettings(context.Context) (*models.CommissionSettings, []models.RankDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Settings == nil {
		return nil, nil, nil
	}
	s := *m.Settings
	return &s, append([]models.RankDefinition(nil), m.Ranks...), nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, week Week) ([]models.SalesTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SalesTransaction
	for _, tx := range m.Transactions {
		if WeekOf(tx.WeekStart).Start.Equal(week.Start) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryStore) PersonalSalesBefore(_ context.Context, before time.Time, currency string) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]decimal.Decimal)
	for _, tx := range m.Transactions {
		if tx.IsEligible && tx.Amount.IsPositive() && tx.Currency == currency && tx.WeekStart.Before(before) {
			out[tx.UserID] = out[tx.UserID].Add(tx.Amount)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListReferralEdges(context.Context) ([]models.ReferralEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ReferralEdge(nil), m.Edges...), nil
}

func (m *MemoryStore) ListBinaryNodes(context.Context) ([]models.BinaryNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.BinaryNode(nil), m.Nodes...), nil
}

func (m *MemoryStore) ListGhostCredits(_ context.Context, week Week) ([]models.GhostVolumeCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.GhostVolumeCredit
	for _, c := range m.Credits {
		if c.StartsAt.Before(week.End) && c.ExpiresAt.After(week.Start) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListFinalizedVolumes(_ context.Context, from, to time.Time) ([]models.BinaryVolumeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BinaryVolumeEntry
	for _, rows := range m.volumes {
		for _, r := range rows {
			if r.IsFinalized && !r.WeekStart.Before(from) && r.WeekStart.Before(to) {
				out = append(out, r)
			}
		}
	}
	sortVolumes(out)
	return out, nil
}

func (m *MemoryStore) LatestCarry(_ context.Context, before time.Time) ([]models.BinaryVolumeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type key struct {
		user string
		leg  models.Leg
	}
	latest := make(map[key]models.BinaryVolumeEntry)
	for _, rows := range m.volumes {
		for _, r := range rows {
			if !r.IsFinalized || !r.WeekStart.Before(before) {
				continue
			}
			k := key{r.UserID, r.Leg}
			if cur, ok := latest[k]; !ok || r.WeekStart.After(cur.WeekStart) {
				latest[k] = r
			}
		}
	}
	out := make([]models.BinaryVolumeEntry, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sortVolumes(out)
	return out, nil
}

func sortVolumes(rows []models.BinaryVolumeEntry) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].WeekStart.Equal(rows[j].WeekStart) {
			return rows[i].WeekStart.Before(rows[j].WeekStart)
		}
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID < rows[j].UserID
		}
		return rows[i].Leg < rows[j].Leg
	})
}

func (m *MemoryStore) ListUserPackages(context.Context) ([]models.UserPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.UserPackage(nil), m.Packages...), nil
}

func (m *MemoryStore) ListUserRanks(context.Context) ([]models.UserRank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.UserRank, 0, len(m.UserRanks))
	for id, level := range m.UserRanks {
		out = append(out, models.UserRank{UserID: id, Level: level})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) GetRun(_ context.Context, week Week) (*models.SettlementRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[week.Key()]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *MemoryStore) ListRuns(context.Context) ([]models.SettlementRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SettlementRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out, nil
}

func (m *MemoryStore) ListSettlements(_ context.Context, week Week) ([]models.WeeklySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.WeeklySettlement(nil), m.settlements[week.Key()]...), nil
}

func (m *MemoryStore) ListEntries(_ context.Context, q EntryQuery) ([]models.CommissionEntry, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []models.CommissionEntry
	for _, e := range m.entries[q.Week.Key()] {
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		matched = append(matched, e)
	}
	total := int64(len(matched))
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) ListExclusions(_ context.Context, week Week) ([]models.SettlementExclusion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.SettlementExclusion(nil), m.exclusions[week.Key()]...), nil
}

// SaveWeek replaces the pending rows of the week. Everything is staged
// before the maps are touched so a failure leaves the store unchanged.
func (m *MemoryStore) SaveWeek(_ context.Context, b *WeekBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := b.Week.Key()
	if run, ok := m.runs[key]; ok && run.IsFinalized {
		return ErrWeekFinalized
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}

	entries := make([]models.CommissionEntry, len(b.Entries))
	for i, e := range b.Entries {
		m.nextID++
		e.ID = m.nextID
		entries[i] = e
	}
	m.runs[key] = b.Run
	m.entries[key] = entries
	m.settlements[key] = append([]models.WeeklySettlement(nil), b.Settlements...)
	m.exclusions[key] = append([]models.SettlementExclusion(nil), b.Exclusions...)
	m.volumes[key] = append([]models.BinaryVolumeEntry(nil), b.Volumes...)
	m.saves++

	if !b.Finalize {
		return nil
	}
	m.history = append(m.history, b.RankChanges...)
	for _, r := range b.UserRanks {
		m.UserRanks[r.UserID] = r.Level
	}
	for _, nv := range b.NodeVolumes {
		for i := range m.Nodes {
			if m.Nodes[i].UserID == nv.UserID {
				m.Nodes[i].LeftVolume = m.Nodes[i].LeftVolume.Add(nv.Left)
				m.Nodes[i].RightVolume = m.Nodes[i].RightVolume.Add(nv.Right)
			}
		}
	}
	return nil
}

// Saves reports how many batches were written.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// RankHistory returns the rank changes written so far.
func (m *MemoryStore) RankHistory() []models.RankHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RankHistory(nil), m.history...)
}

// VolumeRows returns the ledger rows of a week.
func (m *MemoryStore) VolumeRows(week Week) []models.BinaryVolumeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.BinaryVolumeEntry(nil), m.volumes[week.Key()]...)
}
