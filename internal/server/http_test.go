package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/auto-archiver/internal/archiver/metrics"
	"github.com/lk2023060901/auto-archiver/internal/archiver/service"
	"github.com/lk2023060901/auto-archiver/internal/auth"
	"github.com/lk2023060901/auto-archiver/internal/conf"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	log := logger.NewNop()
	db, err := database.New(database.SQLiteConfig(":memory:"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &conf.Config{}
	cfg.Server.Mode = gin.TestMode
	cfg.Metrics = conf.MetricsConfig{Enabled: true, Path: "/metrics"}

	svc := service.NewArchiverService(nil, nil, nil, nil, nil, nil, nil, log)
	return NewHTTPServer(cfg, log, db, nil, auth.NewJWTManager("k", time.Minute), metrics.New(), svc)
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStopBeforeStart(t *testing.T) {
	s := newTestServer(t)
	assert.NoError(t, s.Stop(context.Background()))
}
