package data

import (
	"context"
	"fmt"
	"os"

	archiverdata "github.com/lk2023060901/auto-archiver/internal/archiver/data"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/conf"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/pkg/minio"
	"github.com/lk2023060901/auto-archiver/internal/pkg/redis"
	"go.uber.org/zap"
)

// Data 基础设施资源；Redis 与 MinIO 未启用时为 nil
type Data struct {
	DB    *database.DB
	Redis *redis.Client
	MinIO *minio.Client
	Blobs archiverdata.BlobStore
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	ctx := context.Background()
	d := &Data{}
	var closers []func()

	cleanup := func() {
		log.Info("cleaning up data resources")
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Data, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Initialize database
	db, err := database.New(&config.Database, log.Named("db"))
	if err != nil {
		return fail(fmt.Errorf("failed to init database: %w", err))
	}
	d.DB = db
	closers = append(closers, func() {
		if err := db.Close(); err != nil {
			log.Warn("close database failed", zap.Error(err))
		}
	})

	if config.Database.AutoMigrate {
		if err := models.MigrateWithLog(ctx, db, log); err != nil {
			return fail(fmt.Errorf("failed to auto migrate: %w", err))
		}
	}

	// Initialize Redis (optional)
	if config.Redis.Enabled {
		rc, err := redis.New(&config.Redis.Config, log.Named("redis"))
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		d.Redis = rc
		closers = append(closers, func() {
			if err := rc.Close(); err != nil {
				log.Warn("close redis failed", zap.Error(err))
			}
		})
	}

	// Initialize blob storage
	switch config.Storage.Backend {
	case conf.StorageMinIO:
		mc, err := minio.NewClient(&config.MinIO, log.Named("minio").Logger)
		if err != nil {
			return fail(fmt.Errorf("failed to init minio: %w", err))
		}
		d.MinIO = mc
		closers = append(closers, func() { _ = mc.Close() })

		blobs, err := archiverdata.NewMinIOBlobStore(ctx, mc)
		if err != nil {
			return fail(fmt.Errorf("failed to prepare minio bucket: %w", err))
		}
		d.Blobs = blobs
	default:
		if err := os.MkdirAll(config.Storage.Dir, 0o755); err != nil {
			return fail(fmt.Errorf("failed to create storage dir: %w", err))
		}
		blobs, err := archiverdata.NewLocalBlobStore(config.Storage.Dir)
		if err != nil {
			return fail(fmt.Errorf("failed to init local blob store: %w", err))
		}
		d.Blobs = blobs
	}

	log.Info("data layer initialized",
		zap.String("database", config.Database.Driver),
		zap.String("storage", config.Storage.Backend),
		zap.Bool("redis", d.Redis != nil),
	)
	return d, cleanup, nil
}
