package injector

import (
	"fmt"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/codec"
	archiverdata "github.com/lk2023060901/auto-archiver/internal/archiver/data"
	"github.com/lk2023060901/auto-archiver/internal/archiver/job"
	"github.com/lk2023060901/auto-archiver/internal/archiver/metrics"
	"github.com/lk2023060901/auto-archiver/internal/auth"
	"github.com/lk2023060901/auto-archiver/internal/conf"
	"github.com/lk2023060901/auto-archiver/internal/data"
	emailservice "github.com/lk2023060901/auto-archiver/internal/email/service"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/auto-archiver/internal/pkg/redis"
	"github.com/lk2023060901/auto-archiver/internal/pkg/runguard"
	"github.com/lk2023060901/auto-archiver/internal/server"
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideDB(d *data.Data) *database.DB {
	return d.DB
}

func provideRedisClient(d *data.Data) *pkgredis.Client {
	return d.Redis
}

func providePolicy(config *conf.Config) biz.Policy {
	return config.Archive.Policy()
}

func provideClock() biz.Clock {
	return func() time.Time { return time.Now().UTC() }
}

func provideCodec() biz.Codec {
	return codec.NewZip()
}

func provideCatalog(d *data.Data, config *conf.Config, log *logger.Logger) *archiverdata.CatalogStorage {
	return archiverdata.NewCatalogStorage(d.DB, d.Blobs, archiverdata.CatalogOptions{
		DefaultQuota:  config.Storage.DefaultQuota,
		OwnerCacheLen: config.Storage.OwnerCacheLen,
		OwnerCacheTTL: config.Storage.OwnerCacheTTL,
	}, log)
}

// provideNotifier 站内通知为主渠道，邮件与日志为附加渠道
func provideNotifier(
	config *conf.Config,
	inbox *archiverdata.InboxNotifier,
	catalog *archiverdata.CatalogStorage,
	log *logger.Logger,
) (biz.Notifier, error) {
	extra := []biz.Notifier{archiverdata.NewLogNotifier(log)}
	if config.Email.Enabled {
		mailer, err := emailservice.NewEmailService(&config.Email, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init email service: %w", err)
		}
		extra = append(extra, archiverdata.NewMailNotifier(mailer, catalog, log))
	}
	return archiverdata.NewChainNotifier(log, inbox, extra...), nil
}

// Use case helpers

func provideRestoreUseCase(
	storage biz.Storage,
	codec biz.Codec,
	access biz.AccessRepo,
	policy biz.Policy,
	clock biz.Clock,
	config *conf.Config,
	log *logger.Logger,
) *biz.RestoreUseCase {
	uc := biz.NewRestoreUseCase(storage, codec, access, policy, clock, log)
	if config.Storage.TempDir != "" {
		uc.SetTempDir(config.Storage.TempDir)
	}
	return uc
}

// Scheduler helpers

func provideMetrics() *metrics.Collector {
	return metrics.New()
}

func provideGuard(config *conf.Config, d *data.Data, log *logger.Logger) (runguard.Guard, error) {
	switch config.Scheduler.Guard {
	case conf.GuardFile:
		return runguard.NewFileGuard(config.Scheduler.LockDir)
	case conf.GuardRedis:
		if d.Redis == nil {
			return nil, fmt.Errorf("redis guard requires redis")
		}
		return runguard.NewRedisGuard(d.Redis, config.Scheduler.LockTTL, log.Named("runguard")), nil
	}
	return runguard.NewLocalGuard(), nil
}

// provideScheduler 同时把调度器注册为 archive_now 决策的驱逐触发器
func provideScheduler(
	config *conf.Config,
	archiver *biz.ArchiveUseCase,
	eviction *biz.EvictionUseCase,
	notices *biz.NotificationUseCase,
	guard runguard.Guard,
	collector *metrics.Collector,
	log *logger.Logger,
) (*job.Scheduler, error) {
	s, err := job.NewScheduler(config.Scheduler.Config, archiver, eviction, notices, guard, collector, log)
	if err != nil {
		return nil, err
	}
	notices.SetEvictionTrigger(s)
	return s, nil
}

func provideJWTManager(config *conf.Config) *auth.JWTManager {
	return auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.TokenDuration)
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	scheduler *job.Scheduler,
	catalog *archiverdata.CatalogStorage,
	access *biz.AccessUseCase,
	restore *biz.RestoreUseCase,
	notices *biz.NotificationUseCase,
	eviction *biz.EvictionUseCase,
	jwtManager *auth.JWTManager,
) (*App, func()) {
	cleanup := func() {
		scheduler.Stop()
	}

	return &App{
		Config:        config,
		Logger:        log,
		HTTPServer:    httpServer,
		Scheduler:     scheduler,
		Catalog:       catalog,
		Access:        access,
		Restore:       restore,
		Notifications: notices,
		Eviction:      eviction,
		JWT:           jwtManager,
		cleanup:       cleanup,
	}, cleanup
}
