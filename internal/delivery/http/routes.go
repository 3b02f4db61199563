package http

import (
	"github.com/gin-gonic/gin"

	"github.com/pricelens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(NewIPRateLimiter(cfg.RateLimit.PerIP).Middleware())
	{
		// Extension message protocol
		v1.POST("/messages", handler.HandleMessage)

		v1.POST("/search", handler.SearchProduct)
		v1.POST("/search/image", handler.SearchByImage)

		v1.GET("/settings", handler.GetSettings)
		v1.PUT("/settings", handler.UpdateSettings)
		v1.DELETE("/cache", handler.ClearCache)
		v1.GET("/history", handler.SearchHistory)
		v1.POST("/clicks", handler.TrackClick)
		v1.GET("/clicks", handler.AffiliateClicks)
	}

	return router
}
