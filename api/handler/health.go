package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/homescout/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatsSource reports session usage.
type StatsSource interface {
	Stats() models.ScraperStats
}

// Health returns a handler for GET /health.
//
// Reports session usage and degrades status when > 80% of sessions are active.
func Health(src StatsSource, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := src.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Stats:   stats,
			Version: Version,
		})
	}
}
