package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"syntarex/internal/commission"
	"syntarex/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 500

// GormStore is the commission.Store backed by the application database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// EnsureDefaultSettings creates the launch settings row when no active row exists.
func (s *GormStore) EnsureDefaultSettings(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.CommissionSettings{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		return fmt.Errorf("EnsureDefaultSettings: %w", err)
	}
	if count > 0 {
		return nil
	}
	settings := models.DefaultCommissionSettings()
	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		return fmt.Errorf("EnsureDefaultSettings: %w", err)
	}
	return nil
}

func (s *GormStore) LoadSettings(ctx context.Context) (*models.CommissionSettings, []models.RankDefinition, error) {
	db := s.db.WithContext(ctx)
	var settings models.CommissionSettings
	err := db.Where("is_active = ?", true).Order("id desc").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("LoadSettings: %w", err)
	}
	var ranks []models.RankDefinition
	if err := db.Order("level").Find(&ranks).Error; err != nil {
		return nil, nil, fmt.Errorf("LoadSettings: ranks: %w", err)
	}
	return &settings, ranks, nil
}

func (s *GormStore) ListTransactions(ctx context.Context, week commission.Week) ([]models.SalesTransaction, error) {
	var txs []models.SalesTransaction
	if err := s.db.WithContext(ctx).Where("week_start = ?", week.Start).Order("id").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("ListTransactions %s: %w", week, err)
	}
	return txs, nil
}

// PersonalSalesBefore sums eligible purchases before the cutoff. Refunds and
// other non-positive rows are skipped, as the weekly aggregation does.
func (s *GormStore) PersonalSalesBefore(ctx context.Context, before time.Time, currency string) (map[string]decimal.Decimal, error) {
	var rows []struct {
		UserID string
		Total  decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&models.SalesTransaction{}).
		Select("user_id, SUM(amount) AS total").
		Where("is_eligible = ? AND amount > 0 AND currency = ? AND week_start < ?", true, currency, before).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("PersonalSalesBefore: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.UserID] = r.Total
	}
	return out, nil
}

func (s *GormStore) ListReferralEdges(ctx context.Context) ([]models.ReferralEdge, error) {
	var edges []models.ReferralEdge
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("ListReferralEdges: %w", err)
	}
	return edges, nil
}

func (s *GormStore) ListBinaryNodes(ctx context.Context) ([]models.BinaryNode, error) {
	var nodes []models.BinaryNode
	if err := s.db.WithContext(ctx).Order("user_id").Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("ListBinaryNodes: %w", err)
	}
	return nodes, nil
}

// ListGhostCredits returns credits whose window overlaps the week. The stored
// status is ignored.
func (s *GormStore) ListGhostCredits(ctx context.Context, week commission.Week) ([]models.GhostVolumeCredit, error) {
	var credits []models.GhostVolumeCredit
	err := s.db.WithContext(ctx).
		Where("starts_at < ? AND expires_at > ?", week.End, week.Start).
		Order("id").
		Find(&credits).Error
	if err != nil {
		return nil, fmt.Errorf("ListGhostCredits %s: %w", week, err)
	}
	return credits, nil
}

func (s *GormStore) ListFinalizedVolumes(ctx context.Context, from, to time.Time) ([]models.BinaryVolumeEntry, error) {
	var rows []models.BinaryVolumeEntry
	err := s.db.WithContext(ctx).
		Where("is_finalized = ? AND week_start >= ? AND week_start < ?", true, from, to).
		Order("week_start, user_id, leg").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListFinalizedVolumes: %w", err)
	}
	return rows, nil
}

// LatestCarry joins every finalized row against the newest finalized week of
// its (user, leg) before the cutoff.
func (s *GormStore) LatestCarry(ctx context.Context, before time.Time) ([]models.BinaryVolumeEntry, error) {
	latest := s.db.Model(&models.BinaryVolumeEntry{}).
		Select("user_id, leg, MAX(week_start) AS week_start").
		Where("is_finalized = ? AND week_start < ?", true, before).
		Group("user_id, leg")

	var rows []models.BinaryVolumeEntry
	err := s.db.WithContext(ctx).
		Table("binary_volume_entries AS v").
		Select("v.*").
		Joins("JOIN (?) AS latest ON latest.user_id = v.user_id AND latest.leg = v.leg AND latest.week_start = v.week_start", latest).
		Where("v.is_finalized = ?", true).
		Order("v.user_id, v.leg").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("LatestCarry: %w", err)
	}
	return rows, nil
}

func (s *GormStore) ListUserPackages(ctx context.Context) ([]models.UserPackage, error) {
	var packages []models.UserPackage
	if err := s.db.WithContext(ctx).Order("id").Find(&packages).Error; err != nil {
		return nil, fmt.Errorf("ListUserPackages: %w", err)
	}
	return packages, nil
}

func (s *GormStore) ListUserRanks(ctx context.Context) ([]models.UserRank, error) {
	var ranks []models.UserRank
	if err := s.db.WithContext(ctx).Order("user_id").Find(&ranks).Error; err != nil {
		return nil, fmt.Errorf("ListUserRanks: %w", err)
	}
	return ranks, nil
}

func (s *GormStore) GetRun(ctx context.Context, week commission.Week) (*models.SettlementRun, error) {
	var runs []models.SettlementRun
	if err := s.db.WithContext(ctx).Where("week_start = ?", week.Start).Limit(1).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("GetRun %s: %w", week, err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *GormStore) ListRuns(ctx context.Context) ([]models.SettlementRun, error) {
	var runs []models.SettlementRun
	if err := s.db.WithContext(ctx).Order("week_start").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("ListRuns: %w", err)
	}
	return runs, nil
}

func (s *GormStore) ListSettlements(ctx context.Context, week commission.Week) ([]models.WeeklySettlement, error) {
	var settlements []models.WeeklySettlement
	if err := s.db.WithContext(ctx).Where("week_start = ?", week.Start).Order("user_id").Find(&settlements).Error; err != nil {
		return nil, fmt.Errorf("ListSettlements %s: %w", week, err)
	}
	return settlements, nil
}

func (s *GormStore) ListEntries(ctx context.Context, q commission.EntryQuery) ([]models.CommissionEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.CommissionEntry{}).Where("week_start = ?", q.Week.Start)
	if q.UserID != "" {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.Type != "" {
		query = query.Where("type = ?", q.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ListEntries %s: count: %w", q.Week, err)
	}

	query = query.Order("id")
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var entries []models.CommissionEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("ListEntries %s: %w", q.Week, err)
	}
	return entries, total, nil
}

func (s *GormStore) ListExclusions(ctx context.Context, week commission.Week) ([]models.SettlementExclusion, error) {
	var rows []models.SettlementExclusion
	if err := s.db.WithContext(ctx).Where("week_start = ?", week.Start).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListExclusions %s: %w", week, err)
	}
	return rows, nil
}

// SaveWeek replaces the pending rows of a week inside one transaction. The
// run row is locked first so a concurrent finalization is seen.
func (s *GormStore) SaveWeek(ctx context.Context, b *commission.WeekBatch) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.SettlementRun
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("week_start = ?", b.Week.Start).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return fmt.Errorf("SaveWeek %s: lock run: %w", b.Week, err)
		}
		if len(existing) > 0 && existing[0].IsFinalized {
			return commission.ErrWeekFinalized
		}

		for _, model := range []interface{}{
			&models.CommissionEntry{},
			&models.WeeklySettlement{},
			&models.SettlementExclusion{},
			&models.BinaryVolumeEntry{},
		} {
			if err := tx.Where("week_start = ?", b.Week.Start).Delete(model).Error; err != nil {
				return fmt.Errorf("SaveWeek %s: clear pending rows: %w", b.Week, err)
			}
		}

		run := b.Run
		if len(existing) > 0 {
			run.ID = existing[0].ID
			run.CreatedAt = existing[0].CreatedAt
			if err := tx.Save(&run).Error; err != nil {
				return fmt.Errorf("SaveWeek %s: run: %w", b.Week, err)
			}
		} else if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("SaveWeek %s: run: %w", b.Week, err)
		}

		if err := createAll(tx, b.Entries); err != nil {
			return fmt.Errorf("SaveWeek %s: entries: %w", b.Week, err)
		}
		if err := createAll(tx, b.Settlements); err != nil {
			return fmt.Errorf("SaveWeek %s: settlements: %w", b.Week, err)
		}
		if err := createAll(tx, b.Exclusions); err != nil {
			return fmt.Errorf("SaveWeek %s: exclusions: %w", b.Week, err)
		}
		if err := createAll(tx, b.Volumes); err != nil {
			return fmt.Errorf("SaveWeek %s: volumes: %w", b.Week, err)
		}

		if !b.Finalize {
			return nil
		}
		if err := createAll(tx, b.RankChanges); err != nil {
			return fmt.Errorf("SaveWeek %s: rank history: %w", b.Week, err)
		}
		if len(b.UserRanks) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
			}).CreateInBatches(b.UserRanks, batchSize).Error
			if err != nil {
				return fmt.Errorf("SaveWeek %s: user ranks: %w", b.Week, err)
			}
		}
		for _, nv := range b.NodeVolumes {
			err := tx.Model(&models.BinaryNode{}).
				Where("user_id = ?", nv.UserID).
				Updates(map[string]interface{}{
					"left_volume":  gorm.Expr("left_volume + ?", nv.Left),
					"right_volume": gorm.Expr("right_volume + ?", nv.Right),
				}).Error
			if err != nil {
				return fmt.Errorf("SaveWeek %s: node volume %s: %w", b.Week, nv.UserID, err)
			}
		}
		return nil
	})
}

// createAll inserts a copy of rows so generated ids never leak into the
// caller's slice when the transaction rolls back.
func createAll[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(append([]T(nil), rows...), batchSize).Error
}

// ExpireGhostCredits marks credits whose window has elapsed as expired. The
// engine never reads the status; it is kept for display.
func (s *GormStore) ExpireGhostCredits(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.GhostVolumeCredit{}).
		Where("status = ? AND expires_at <= ?", models.GhostStatusActive, now).
		Update("status", models.GhostStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("ExpireGhostCredits: %w", res.Error)
	}
	return res.RowsAffected, nil
}
