package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/communitymarket/ucm-ledger/internal/api/handler"
	"github.com/communitymarket/ucm-ledger/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	accountHandler *handler.AccountHandler,
	transferHandler *handler.TransferHandler,
	requestHandler *handler.RequestHandler,
	pricingHandler *handler.PricingHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Metrics())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Account and ledger operations
		accounts := v1.Group("/accounts")
		{
			accounts.POST("", accountHandler.Open)
			accounts.GET("/:id", accountHandler.GetByID)
			accounts.GET("/:id/ledger", accountHandler.History)
			accounts.GET("/:id/audit", accountHandler.Audit)
			accounts.POST("/:id/grants", transferHandler.Grant)
		}

		// Peer-to-peer transfers
		v1.POST("/transfers", transferHandler.Create)

		// Service request lifecycle
		requests := v1.Group("/requests")
		{
			requests.POST("", requestHandler.Create)
			requests.GET("/board", requestHandler.Board)
			requests.GET("/mine", requestHandler.Mine)
			requests.GET("/assigned", requestHandler.Assigned)
			requests.GET("/:id", requestHandler.GetByID)
			requests.DELETE("/:id", requestHandler.Delete)
			requests.POST("/:id/transitions", requestHandler.Transition)
			requests.POST("/:id/pay", requestHandler.Pay)
		}

		// Fee schedule and paid actions
		pricing := v1.Group("/pricing")
		{
			pricing.GET("", pricingHandler.Schedule)
			pricing.GET("/quote", pricingHandler.Quote)
		}
		v1.POST("/charges", pricingHandler.Charge)

		// Ledger statistics
		v1.GET("/stats/ledger", accountHandler.Statistics)
	}

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
