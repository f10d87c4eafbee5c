//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	archiverdata "github.com/lk2023060901/auto-archiver/internal/archiver/data"
	"github.com/lk2023060901/auto-archiver/internal/archiver/job"
	"github.com/lk2023060901/auto-archiver/internal/archiver/service"
	"github.com/lk2023060901/auto-archiver/internal/conf"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/server"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Repositories
	repositoryProviderSet,

	// Use cases
	useCaseProviderSet,

	// Scheduler
	jobProviderSet,

	// Servers
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideDB,
	provideRedisClient,
	providePolicy,
	provideClock,
	provideCodec,
)

// Repository providers
var repositoryProviderSet = wire.NewSet(
	provideCatalog,
	wire.Bind(new(biz.Storage), new(*archiverdata.CatalogStorage)),
	archiverdata.NewAccessRepo,
	wire.Bind(new(biz.AccessRepo), new(*archiverdata.AccessRepo)),
	archiverdata.NewDecisionRepo,
	wire.Bind(new(biz.DecisionRepo), new(*archiverdata.DecisionRepo)),
	archiverdata.NewTransactor,
	wire.Bind(new(biz.Transactor), new(*archiverdata.Transactor)),
	archiverdata.NewInboxNotifier,
	wire.Bind(new(service.InboxLister), new(*archiverdata.InboxNotifier)),
	provideNotifier,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	biz.NewArchiveUseCase,
	biz.NewNotificationUseCase,
	biz.NewEvictionUseCase,
	biz.NewAccessUseCase,
	provideRestoreUseCase,
)

// Scheduler providers
var jobProviderSet = wire.NewSet(
	provideMetrics,
	provideGuard,
	provideScheduler,
	wire.Bind(new(service.ArchiveNowRunner), new(*job.Scheduler)),
)

// Server providers
var serverProviderSet = wire.NewSet(
	provideJWTManager,
	service.NewArchiverService,
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
