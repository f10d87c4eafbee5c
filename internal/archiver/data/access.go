package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"gorm.io/gorm/clause"
)

// AccessRepo 访问记录仓储实现
type AccessRepo struct {
	db *database.DB
}

// NewAccessRepo 创建访问记录仓储
func NewAccessRepo(db *database.DB) *AccessRepo {
	return &AccessRepo{db: db}
}

var _ biz.AccessRepo = (*AccessRepo)(nil)

// Touch 插入或更新 last_accessed，不改变置顶状态
func (r *AccessRepo) Touch(ctx context.Context, fileID biz.FileID, owner biz.UserID, at time.Time) error {
	po := &models.FileAccess{
		FileID:       int64(fileID),
		OwnerID:      string(owner),
		LastAccessed: at.Unix(),
	}
	err := r.db.GetDBFromContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_accessed", "owner_id"}),
	}).Create(po).Error
	if err != nil {
		return fmt.Errorf("failed to touch access record: %w", err)
	}
	return nil
}

// SetPinned 设置置顶；不存在时以 at 作为 last_accessed 创建
func (r *AccessRepo) SetPinned(ctx context.Context, fileID biz.FileID, owner biz.UserID, pinned bool, at time.Time) error {
	po := &models.FileAccess{
		FileID:       int64(fileID),
		OwnerID:      string(owner),
		LastAccessed: at.Unix(),
		IsPinned:     pinned,
	}
	err := r.db.GetDBFromContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_pinned"}),
	}).Create(po).Error
	if err != nil {
		return fmt.Errorf("failed to set pin: %w", err)
	}
	return nil
}

func (r *AccessRepo) Get(ctx context.Context, fileID biz.FileID) (*biz.AccessRecord, error) {
	var po models.FileAccess
	err := r.db.GetDBFromContext(ctx).Where("file_id = ?", int64(fileID)).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access record: %w", err)
	}
	return toAccessRecord(&po), nil
}

func (r *AccessRepo) Remove(ctx context.Context, fileID biz.FileID) error {
	err := r.db.GetDBFromContext(ctx).Where("file_id = ?", int64(fileID)).Delete(&models.FileAccess{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove access record: %w", err)
	}
	return nil
}

// ListIdleUnpinned 按 (last_accessed, file_id) 升序键集分页列出未置顶记录
func (r *AccessRepo) ListIdleUnpinned(ctx context.Context, q biz.IdleQuery) ([]*biz.AccessRecord, error) {
	db := r.db.GetDBFromContext(ctx).Model(&models.FileAccess{}).Where("is_pinned = ?", false)

	if q.InclusiveBefore {
		db = db.Where("last_accessed <= ?", q.Before.Unix())
	} else {
		db = db.Where("last_accessed < ?", q.Before.Unix())
	}
	db = db.Scopes(
		database.WhereIf(q.Owner != "", "owner_id = ?", string(q.Owner)),
		database.WhereIf(!q.After.IsZero(), "last_accessed > ?", q.After.Unix()),
		database.WhereIf(len(q.Exclude) > 0, "file_id NOT IN ?", fileIDs(q.Exclude)),
	)
	if c := q.Cursor; c != nil {
		la := c.LastAccessed.Unix()
		db = db.Where("(last_accessed > ? OR (last_accessed = ? AND file_id > ?))", la, la, int64(c.FileID))
	}
	if q.Limit > 0 {
		db = db.Scopes(database.Limit(q.Limit))
	}

	var pos []models.FileAccess
	if err := db.Order("last_accessed ASC, file_id ASC").Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("failed to list idle files: %w", err)
	}

	out := make([]*biz.AccessRecord, len(pos))
	for i := range pos {
		out[i] = toAccessRecord(&pos[i])
	}
	return out, nil
}

func toAccessRecord(po *models.FileAccess) *biz.AccessRecord {
	return &biz.AccessRecord{
		FileID:       biz.FileID(po.FileID),
		OwnerID:      biz.UserID(po.OwnerID),
		LastAccessed: time.Unix(po.LastAccessed, 0).UTC(),
		IsPinned:     po.IsPinned,
	}
}

func fileIDs(ids []biz.FileID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
