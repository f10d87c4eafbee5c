package data

import (
	"context"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"gorm.io/gorm"
)

// Transactor 将事务放入 ctx，仓储通过 GetDBFromContext 取用
type Transactor struct {
	db *database.DB
}

func NewTransactor(db *database.DB) *Transactor {
	return &Transactor{db: db}
}

var _ biz.Transactor = (*Transactor)(nil)

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.db.Transaction(ctx, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx)
	})
}
