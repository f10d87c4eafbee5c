package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/auto-archiver/internal/archiver/metrics"
	"github.com/lk2023060901/auto-archiver/internal/archiver/service"
	"github.com/lk2023060901/auto-archiver/internal/auth"
	"github.com/lk2023060901/auto-archiver/internal/auth/middleware"
	"github.com/lk2023060901/auto-archiver/internal/conf"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	apperrors "github.com/lk2023060901/auto-archiver/internal/pkg/errors"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/pkg/redis"
	"github.com/lk2023060901/auto-archiver/internal/pkg/response"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server *http.Server
	router *gin.Engine
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	db *database.DB,
	redisClient *redis.Client,
	jwtManager *auth.JWTManager,
	collector *metrics.Collector,
	archiverService *service.ArchiverService,
) *HTTPServer {
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	metricsPath := config.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLoggerWithConfig(log, logger.MiddlewareOptions{
		SkipPaths: []string{"/health", metricsPath},
	}))
	router.Use(middleware.CORS())
	if config.Metrics.Enabled {
		router.Use(collector.GinMiddleware())
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if config.Metrics.Enabled {
		router.GET(metricsPath, gin.WrapH(collector.Handler()))
	}

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtManager, log))
	if config.Auth.RateLimit.Enabled && redisClient != nil {
		api.Use(middleware.RateLimiter(redisClient, config.Auth.RateLimit.RateLimiterConfig, log))
	}
	archiverService.RegisterRoutes(api)

	router.NoRoute(func(c *gin.Context) {
		response.ErrorWithCode(c, apperrors.ErrNotFound, c.Request.URL.Path)
	})

	return &HTTPServer{
		server: &http.Server{
			Addr:              config.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
		logger: log,
	}
}

// Handler 便于测试直接使用 httptest
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
