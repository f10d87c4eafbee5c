package models

import (
	"context"
	"testing"

	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCreatesTables(t *testing.T) {
	db, err := database.New(database.SQLiteConfig(":memory:"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, MigrateWithLog(ctx, db, logger.NewNop()))
	// 重复迁移是幂等的
	require.NoError(t, AutoMigrate(ctx, db))

	for _, table := range []string{"accounts", "file_nodes", "archiver_file_access", "archiver_decisions", "archiver_notifications"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex(&FileNode{}, "idx_node_owner_path"))

	require.NoError(t, DropTables(ctx, db))
	assert.False(t, db.Migrator().HasTable("file_nodes"))
}
