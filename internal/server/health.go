package server

import (
	"context"
	"net/http"
	"time"

	"github.com/abduss/otagate/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// HealthCheck is one dependency checked by /health/ready.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func registerHealthRoutes(router *gin.Engine, checks []HealthCheck) {
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.FromContext(c).Warn("readiness check failed",
					zap.String("component", check.Name), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "degraded",
					"component": check.Name,
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
