package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktracker/internal/config"
	"stocktracker/internal/logger"
	"stocktracker/internal/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	os.Exit(m.Run())
}

func sqliteConfig(t *testing.T) *config.Config {
	return &config.Config{
		DBDriver:        "sqlite",
		DBPath:          filepath.Join(t.TempDir(), "app.db"),
		ProviderTimeout: time.Second,
		ProviderRetries: 1,
		StaleAfter:      15 * time.Minute,
		HistoryPeriod:   "1mo",
		PipelineAPIKey:  "key",
	}
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{ProviderTimeout: time.Second}
	assert.Equal(t, "Yahoo Finance", NewProvider(cfg).Name())

	cfg.PolygonAPIKey = "pk"
	assert.Equal(t, "Polygon.io", NewProvider(cfg).Name())
}

func TestNew_SQLite(t *testing.T) {
	a, err := New(context.Background(), sqliteConfig(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.True(t, a.DB.Migrator().HasTable(&models.Stock{}))
	assert.NotNil(t, a.Services.Stocks)
	assert.NotNil(t, a.Services.Updater)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_InvalidHistoryPeriodFallsBack(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.HistoryPeriod = "3w"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.DBDriver = "oracle"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")
}

func TestNew_UnreachableRedis(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to connect to redis")
}
