package injector

import (
	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	archiverdata "github.com/lk2023060901/auto-archiver/internal/archiver/data"
	"github.com/lk2023060901/auto-archiver/internal/archiver/job"
	"github.com/lk2023060901/auto-archiver/internal/auth"
	"github.com/lk2023060901/auto-archiver/internal/conf"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/server"
)

// App encapsulates all application dependencies
type App struct {
	Config        *conf.Config
	Logger        *logger.Logger
	HTTPServer    *server.HTTPServer
	Scheduler     *job.Scheduler
	Catalog       *archiverdata.CatalogStorage
	Access        *biz.AccessUseCase
	Restore       *biz.RestoreUseCase
	Notifications *biz.NotificationUseCase
	Eviction      *biz.EvictionUseCase
	JWT           *auth.JWTManager
	cleanup       func()
}

// Cleanup stops the scheduler; data resources are released by the cleanup
// func returned from InitializeApp.
func (a *App) Cleanup() {
	if a.cleanup != nil {
		a.cleanup()
	}
}
