package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
)

// DecisionRepo 决策记录仓储实现
type DecisionRepo struct {
	db *database.DB
}

func NewDecisionRepo(db *database.DB) *DecisionRepo {
	return &DecisionRepo{db: db}
}

var _ biz.DecisionRepo = (*DecisionRepo)(nil)

func (r *DecisionRepo) HasNotifiedSince(ctx context.Context, fileID biz.FileID, userID biz.UserID, decision biz.Decision, since time.Time) (bool, error) {
	db := r.db.GetDBFromContext(ctx).Model(&models.Decision{}).
		Where("file_id = ? AND user_id = ? AND notified_at > ?", int64(fileID), string(userID), since.Unix()).
		Scopes(database.WhereIf(decision != "", "decision = ?", string(decision)))

	var count int64
	if err := db.Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check notifications: %w", err)
	}
	return count > 0, nil
}

func (r *DecisionRepo) Create(ctx context.Context, record *biz.DecisionRecord) error {
	po := fromDecisionRecord(record)
	if err := r.db.GetDBFromContext(ctx).Create(po).Error; err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}
	record.ID = po.ID
	return nil
}

// Transition 将最近一条未决记录原地更新为 decision，没有则追加一条终态记录
func (r *DecisionRepo) Transition(ctx context.Context, fileID biz.FileID, userID biz.UserID, pendingKind, decision biz.Decision,
	filePath string, at time.Time) (*biz.DecisionRecord, error) {
	db := r.db.GetDBFromContext(ctx)
	decidedAt := at.Unix()

	var po models.Decision
	err := db.Where("file_id = ? AND user_id = ? AND decision = ? AND decided_at IS NULL",
		int64(fileID), string(userID), string(pendingKind)).
		Order("notified_at DESC, id DESC").
		First(&po).Error
	switch {
	case err == nil:
		po.Decision = string(decision)
		po.DecidedAt = &decidedAt
		if err := db.Model(&po).Updates(map[string]interface{}{
			"decision":   po.Decision,
			"decided_at": decidedAt,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to update decision: %w", err)
		}
	case database.IsRecordNotFoundError(err):
		po = models.Decision{
			FileID:    int64(fileID),
			UserID:    string(userID),
			FilePath:  filePath,
			Decision:  string(decision),
			DecidedAt: &decidedAt,
		}
		if err := db.Create(&po).Error; err != nil {
			return nil, fmt.Errorf("failed to create decision: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to find pending decision: %w", err)
	}
	return toDecisionRecord(&po), nil
}

func (r *DecisionRepo) LatestDecided(ctx context.Context, fileID biz.FileID, userID biz.UserID, decision biz.Decision) (*biz.DecisionRecord, error) {
	var po models.Decision
	err := r.db.GetDBFromContext(ctx).
		Where("file_id = ? AND user_id = ? AND decision = ? AND decided_at IS NOT NULL",
			int64(fileID), string(userID), string(decision)).
		Order("decided_at DESC, id DESC").
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest decision: %w", err)
	}
	return toDecisionRecord(&po), nil
}

// Statistics 按决策类型统计，排除未决记录
func (r *DecisionRepo) Statistics(ctx context.Context, userID biz.UserID) (*biz.DecisionStatistics, error) {
	var rows []struct {
		Decision string
		Count    int64
	}
	err := r.db.GetDBFromContext(ctx).Model(&models.Decision{}).
		Select("decision, COUNT(*) AS count").
		Where("user_id = ? AND decision NOT IN ?", string(userID),
			[]string{string(biz.DecisionPending), string(biz.DecisionStorageWarningPending)}).
		Group("decision").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}

	stats := &biz.DecisionStatistics{Counts: make(map[biz.Decision]int64, len(rows))}
	for _, row := range rows {
		stats.Counts[biz.Decision(row.Decision)] = row.Count
		stats.Total += row.Count
	}
	return stats, nil
}

func fromDecisionRecord(rec *biz.DecisionRecord) *models.Decision {
	po := &models.Decision{
		ID:       rec.ID,
		FileID:   int64(rec.FileID),
		UserID:   string(rec.UserID),
		FilePath: rec.FilePath,
		Decision: string(rec.Decision),
	}
	if !rec.NotifiedAt.IsZero() {
		po.NotifiedAt = rec.NotifiedAt.Unix()
	}
	if rec.IsDecided() {
		at := rec.DecidedAt.Unix()
		po.DecidedAt = &at
	}
	return po
}

func toDecisionRecord(po *models.Decision) *biz.DecisionRecord {
	rec := &biz.DecisionRecord{
		ID:       po.ID,
		FileID:   biz.FileID(po.FileID),
		UserID:   biz.UserID(po.UserID),
		FilePath: po.FilePath,
		Decision: biz.Decision(po.Decision),
	}
	if po.NotifiedAt > 0 {
		rec.NotifiedAt = time.Unix(po.NotifiedAt, 0).UTC()
	}
	if po.DecidedAt != nil {
		rec.DecidedAt = time.Unix(*po.DecidedAt, 0).UTC()
	}
	return rec
}
