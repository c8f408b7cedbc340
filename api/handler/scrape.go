package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/homescout/cache"
	"github.com/use-agent/homescout/models"
	"github.com/use-agent/homescout/scraper"
)

// ListingScraper runs one scrape job. *scraper.Scraper implements it.
type ListingScraper interface {
	Scrape(ctx context.Context, job scraper.Job) ([]models.Listing, error)
}

// Scrape returns a handler for GET /scrape.
//
// Orchestration flow:
//  1. Require city and state; nothing is launched without them.
//  2. Bind the optional parameters.
//  3. Build the search URL.
//  4. Serve from cache when the client allows it.
//  5. Scrape; any failure is logged and answered with a generic 500.
func Scrape(sc ListingScraper, baseURL string, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// ── 1. Location ─────────────────────────────────────────────
		city, state := c.Query("city"), c.Query("state")
		if city == "" || state == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.MsgMissingLocation})
			return
		}

		// ── 2. Optional parameters ──────────────────────────────────
		var req models.SearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}

		// ── 3. Target URL ───────────────────────────────────────────
		target := scraper.SearchURL(baseURL, city, state)
		job := scraper.Job{URL: target, MaxPages: req.MaxPages, FetchMode: req.FetchMode}

		// ── 4. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if cc != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(target, req.MaxPages, req.FetchMode)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				slog.Debug("serving cached listings", "url", target, "listings", len(cached))
				c.Header("X-Cache", "hit")
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 5. Scrape ───────────────────────────────────────────────
		listings, err := sc.Scrape(c.Request.Context(), job)
		if err != nil {
			slog.Error("scrape failed",
				"url", target,
				"code", models.ErrorCode(err),
				"error", err,
				"duration", time.Since(start).Round(time.Millisecond).String(),
			)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.MsgScrapeFailed})
			return
		}
		if listings == nil {
			listings = []models.Listing{}
		}

		if cacheKey != "" {
			cc.Set(cacheKey, listings)
			c.Header("X-Cache", "miss")
		}

		c.JSON(http.StatusOK, listings)
	}
}
