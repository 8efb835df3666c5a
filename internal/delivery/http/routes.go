package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dealwatch/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Liveness and readiness endpoints
	router.GET("/health", handler.HealthCheck)
	router.GET("/ready", handler.ReadyCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		deals := v1.Group("/deals")
		{
			deals.POST("", handler.SubmitDeal)
			deals.GET("/summary", handler.GetSummary)
		}
	}

	return router
}
