package router

import (
	"github.com/finsite/stock-backtest-engine/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)

	backtestHandler := handler.NewBacktestHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		backtests := v1.Group("/backtests")
		{
			// POST /api/v1/backtests - Run a backtest synchronously
			backtests.POST("", backtestHandler.RunBacktest)

			// POST /api/v1/backtests/enqueue - Queue a backtest for the worker
			backtests.POST("/enqueue", backtestHandler.EnqueueBacktest)

			// GET /api/v1/backtests - List results with filtering and pagination
			backtests.GET("", backtestHandler.ListBacktests)

			// GET /api/v1/backtests/:job_id - Get a result
			backtests.GET("/:job_id", backtestHandler.GetBacktest)

			// DELETE /api/v1/backtests/:job_id - Delete a result
			backtests.DELETE("/:job_id", backtestHandler.DeleteBacktest)
		}
	}

	return r
}
