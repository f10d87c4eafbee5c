package models

import (
	"context"
	"fmt"

	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
)

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&Account{},
		&FileNode{},
		&FileAccess{},
		&Decision{},
		&Notification{},
	}
}

// AutoMigrate 自动迁移所有归档相关表
func AutoMigrate(ctx context.Context, db *database.DB) error {
	for _, model := range All() {
		if err := db.WithContext(ctx).AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	if err := createIndexes(ctx, db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// createIndexes 空闲文件扫描按 (last_accessed, file_id) 键集分页
func createIndexes(ctx context.Context, db *database.DB) error {
	return db.WithContext(ctx).Exec(`
		CREATE INDEX IF NOT EXISTS idx_access_idle
		ON archiver_file_access(is_pinned, last_accessed, file_id)
	`).Error
}

// DropTables 删除所有归档相关表（仅用于测试）
func DropTables(ctx context.Context, db *database.DB) error {
	all := All()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.WithContext(ctx).Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("failed to drop table %T: %w", all[i], err)
		}
	}
	return nil
}

// MigrateWithLog 带日志的迁移
func MigrateWithLog(ctx context.Context, db *database.DB, log *logger.Logger) error {
	log.Info("starting archiver schema migration")

	if err := AutoMigrate(ctx, db); err != nil {
		log.Error("schema migration failed", zap.Error(err))
		return err
	}

	log.Info("archiver schema migration completed", zap.Int("tables", len(All())))
	return nil
}
