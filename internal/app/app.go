// Package app wires configuration, storage, market data, and services into
// one object shared by the API server and the updater CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stocktracker/internal/config"
	"stocktracker/internal/database"
	"stocktracker/internal/events"
	"stocktracker/internal/lock"
	"stocktracker/internal/logger"
	"stocktracker/internal/marketdata"
	"stocktracker/internal/router"
	"stocktracker/internal/services"
)

const retryInitialInterval = 250 * time.Millisecond

// App holds the long-lived dependencies of a process.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Services router.Services

	manager   *database.Manager
	redis     *redis.Client
	publisher events.Publisher
	log       *zap.SugaredLogger
}

// New connects to the database, migrates the schema, and builds every
// service. Redis and Kafka are used only when configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.Component("app")

	dbConfig, err := database.NewConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}
	manager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := manager.Migrate(); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	a := &App{Config: cfg, DB: manager.DB(), manager: manager, log: log}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		locker = lock.NewRedis(a.redis, cfg.LockTTL)
		log.Infow("Using redis symbol lock", "addr", cfg.RedisAddr)
	}

	a.publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Infow("Publishing stock events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	period, err := marketdata.ParsePeriod(cfg.HistoryPeriod)
	if err != nil {
		log.Warnw("Invalid HISTORY_PERIOD, using default", "value", cfg.HistoryPeriod, "default", marketdata.DefaultPeriod)
		period = marketdata.DefaultPeriod
	}

	provider := NewProvider(cfg)
	log.Infow("Market data provider selected", "provider", provider.Name())

	stocks := services.NewStockService(a.DB, provider, services.StockServiceOptions{
		StaleAfter:    cfg.StaleAfter,
		HistoryPeriod: period,
		Locker:        locker,
		Publisher:     a.publisher,
	})
	a.Services = router.Services{
		Users:     services.NewUserService(a.DB),
		Stocks:    stocks,
		Holdings:  services.NewHoldingService(a.DB, stocks),
		Watchlist: services.NewWatchlistService(a.DB, stocks),
		Portfolio: services.NewPortfolioService(a.DB),
		Updater:   services.NewUpdaterService(a.DB, stocks),
		Audit:     services.NewAuditService(a.DB),
	}
	return a, nil
}

// NewProvider returns Polygon.io when POLYGON_API_KEY is set and Yahoo
// Finance otherwise, with retries on transient failures.
func NewProvider(cfg *config.Config) marketdata.Provider {
	var p marketdata.Provider
	if cfg.PolygonAPIKey != "" {
		p = marketdata.NewPolygonProvider(cfg.PolygonAPIKey, cfg.ProviderTimeout)
	} else {
		p = marketdata.NewYahooProvider(&http.Client{Timeout: cfg.ProviderTimeout})
	}
	return marketdata.WithRetry(p, cfg.ProviderRetries, retryInitialInterval, logger.Component("provider"))
}

// Router builds the HTTP engine over the app's services.
func (a *App) Router() *gin.Engine {
	return router.New(a.Services, router.Options{
		PipelineAPIKey: a.Config.PipelineAPIKey,
		Swagger:        true,
		RequestLogging: true,
	})
}

// Close releases external connections. It is safe to call on a partially
// built App.
func (a *App) Close() error {
	var firstErr error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warnw("Failed to close event publisher", "error", err)
			firstErr = err
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.manager != nil {
		if err := a.manager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
