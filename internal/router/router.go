// Package router assembles the gin engine and its route table.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"stocktracker/internal/handlers"
	"stocktracker/internal/middleware"
	"stocktracker/internal/services"

	_ "stocktracker/internal/docs" // swagger docs
)

// Services is everything the route table needs.
type Services struct {
	Users     services.UserServicer
	Stocks    services.StockServicer
	Holdings  services.HoldingServicer
	Watchlist services.WatchlistServicer
	Portfolio services.PortfolioServicer
	Updater   services.UpdaterServicer
	Audit     services.AuditServicer
}

// Options toggles optional parts of the engine.
type Options struct {
	PipelineAPIKey string
	Swagger        bool
	RequestLogging bool
}

// New builds the engine with every route mounted under /api/v1.
func New(svc Services, opts Options) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Users, svc.Audit)
	stockHandler := handlers.NewStockHandler(svc.Stocks)
	holdingHandler := handlers.NewHoldingHandler(svc.Holdings, svc.Audit)
	watchlistHandler := handlers.NewWatchlistHandler(svc.Watchlist, svc.Audit)
	portfolioHandler := handlers.NewPortfolioHandler(svc.Portfolio)
	pipelineHandler := handlers.NewPipelineHandler(svc.Stocks, svc.Updater, svc.Audit)

	router := gin.New()
	router.Use(gin.Recovery())
	if opts.RequestLogging {
		router.Use(middleware.RequestLogging())
	}
	router.Use(middleware.ErrorHandler())
	router.Use(cors())

	if opts.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	protected.GET("/quote", stockHandler.GetQuote)
	protected.GET("/search/stocks", stockHandler.SearchStocks)

	stocks := protected.Group("/stocks")
	stocks.GET("/:symbol", stockHandler.GetStock)
	stocks.GET("/:symbol/history", stockHandler.GetHistory)
	stocks.GET("/:symbol/indicators", stockHandler.GetIndicators)

	holdings := protected.Group("/holdings")
	holdings.POST("", holdingHandler.AddHolding)
	holdings.GET("", holdingHandler.GetHoldings)
	holdings.GET("/:id", holdingHandler.GetHolding)
	holdings.DELETE("/:id", holdingHandler.DeleteHolding)

	watchlist := protected.Group("/watchlist")
	watchlist.POST("", watchlistHandler.AddToWatchlist)
	watchlist.GET("", watchlistHandler.GetWatchlist)
	watchlist.DELETE("/:symbol", watchlistHandler.RemoveFromWatchlist)

	portfolio := protected.Group("/portfolio")
	portfolio.GET("/stats", portfolioHandler.GetStats)
	portfolio.GET("/value", portfolioHandler.GetValueSeries)
	portfolio.GET("/performance", portfolioHandler.GetPerformance)

	// Pipeline routes (API key auth, for schedulers and admins)
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(opts.PipelineAPIKey))
	pipeline.POST("/stocks/refresh", pipelineHandler.RefreshAll)
	pipeline.POST("/stocks/:symbol/backfill", pipelineHandler.Backfill)
	pipeline.DELETE("/stocks/:symbol", pipelineHandler.DeleteStock)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
