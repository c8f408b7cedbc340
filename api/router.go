package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/homescout/api/handler"
	"github.com/use-agent/homescout/api/middleware"
	"github.com/use-agent/homescout/cache"
	"github.com/use-agent/homescout/config"
	"github.com/use-agent/homescout/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestLogger
func NewRouter(sc *scraper.Scraper, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	r.GET("/health", handler.Health(sc, startTime))
	r.GET("/scrape", handler.Scrape(sc, cfg.Site.BaseURL, cc))

	return r
}
