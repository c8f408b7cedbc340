package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/use-agent/homescout/config"
	"github.com/use-agent/homescout/models"
	"golang.org/x/time/rate"
)

// Job describes one scrape.
type Job struct {
	// URL is the search results page to start from.
	URL string

	// MaxPages lowers the configured page bound when > 0.
	MaxPages int

	// FetchMode selects a launcher by name; empty uses the configured default.
	FetchMode string
}

// Scraper runs scrapes, each in its own freshly launched session.
// It is safe for concurrent use.
type Scraper struct {
	launchers  map[string]Launcher
	scraperCfg config.ScraperConfig
	siteCfg    config.SiteConfig

	// slots bounds concurrent sessions; nil means unlimited.
	slots   chan struct{}
	limiter *rate.Limiter

	active atomic.Int32
	total  atomic.Int64
	failed atomic.Int64
}

// NewScraper wires the browser and http launchers from configuration.
func NewScraper(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, siteCfg config.SiteConfig) *Scraper {
	return New(scraperCfg, siteCfg, browserCfg.MaxSessions,
		NewRodLauncher(browserCfg, scraperCfg),
		NewHTTPLauncher(browserCfg.Proxy, scraperCfg.NavigationTimeout),
	)
}

// New creates a Scraper over the given launchers. maxSessions <= 0 means
// unlimited concurrency.
func New(scraperCfg config.ScraperConfig, siteCfg config.SiteConfig, maxSessions int, launchers ...Launcher) *Scraper {
	s := &Scraper{
		launchers:  make(map[string]Launcher, len(launchers)),
		scraperCfg: scraperCfg,
		siteCfg:    siteCfg,
	}
	for _, l := range launchers {
		s.launchers[l.Name()] = l
	}
	if maxSessions > 0 {
		s.slots = make(chan struct{}, maxSessions)
	}
	if scraperCfg.PageInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(scraperCfg.PageInterval), 1)
	}
	return s
}

// Stats returns a snapshot of session usage.
func (s *Scraper) Stats() models.ScraperStats {
	return models.ScraperStats{
		MaxSessions:    cap(s.slots),
		ActiveSessions: int(s.active.Load()),
		TotalScrapes:   s.total.Load(),
		FailedScrapes:  s.failed.Load(),
	}
}

// Scrape visits the search results starting at job.URL and returns every
// listing found, in visitation order. Any failure discards the partial
// result.
func (s *Scraper) Scrape(ctx context.Context, job Job) ([]models.Listing, error) {
	s.total.Add(1)
	listings, err := s.scrape(ctx, job)
	if err != nil {
		s.failed.Add(1)
		return nil, err
	}
	return listings, nil
}

// scrape is the orchestration loop.
//
//  1. Timeout guard    – hard deadline on the entire operation
//  2. Session slot     – wait for capacity (honours ctx)
//  3. Launch           – fresh isolated session
//  4. DEFER: release   – runs on every exit path, exactly once
//  5. Navigate         – initial load
//  6. Per page         – scroll, collect, extract, advance
func (s *Scraper) scrape(ctx context.Context, job Job) ([]models.Listing, error) {
	launcher, err := s.launcher(job.FetchMode)
	if err != nil {
		return nil, err
	}

	// ── 1. Timeout guard ──────────────────────────────────────────────
	if s.scraperCfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.scraperCfg.RequestTimeout)
		defer cancel()
	}

	// ── 2. Acquire a session slot ─────────────────────────────────────
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-ctx.Done():
			return nil, categorizeError(ctx.Err(), "waiting for a free session")
		}
	}

	// ── 3. Launch ─────────────────────────────────────────────────────
	start := time.Now()
	sess, err := launcher.Launch(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, categorizeError(ctxErr, "launch interrupted")
		}
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch session", err)
	}
	s.active.Add(1)

	// ── 4. Guaranteed release ─────────────────────────────────────────
	defer func() {
		s.active.Add(-1)
		if closeErr := sess.Close(); closeErr != nil {
			slog.Warn("session close failed", "backend", launcher.Name(), "error", closeErr)
		}
	}()

	// ── 5. Navigate ───────────────────────────────────────────────────
	if err := sess.Navigate(job.URL); err != nil {
		return nil, categorizeError(err, "navigation to search page failed")
	}

	// ── 6. Page loop ──────────────────────────────────────────────────
	maxPages := s.scraperCfg.MaxPages
	if job.MaxPages > 0 && (maxPages <= 0 || job.MaxPages < maxPages) {
		maxPages = job.MaxPages
	}

	listings := make([]models.Listing, 0)
	var prevPage []models.Listing
	for page := 1; ; page++ {
		pageListings, err := s.scrapePage(ctx, sess)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		listings = append(listings, pageListings...)

		if limit := s.scraperCfg.MaxResults; limit > 0 && len(listings) >= limit {
			listings = listings[:limit]
			slog.Info("result limit reached", "url", job.URL, "page", page, "limit", limit)
			break
		}

		// A next-page control that lands on the same records would loop forever.
		if page > 1 && slices.Equal(pageListings, prevPage) {
			slog.Warn("next page repeated the previous results, stopping", "url", job.URL, "page", page)
			break
		}
		prevPage = pageListings

		if maxPages > 0 && page >= maxPages {
			slog.Info("page limit reached", "url", job.URL, "pages", page)
			break
		}

		more, err := advance(ctx, sess, s.siteCfg, s.limiter)
		if err != nil {
			return nil, categorizeError(err, fmt.Sprintf("advancing past page %d failed", page))
		}
		if !more {
			break
		}
	}

	slog.Info("scrape finished",
		"url", job.URL,
		"backend", launcher.Name(),
		"listings", len(listings),
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return listings, nil
}

// scrapePage scrolls the current page, then extracts all of its cards.
func (s *Scraper) scrapePage(ctx context.Context, sess Session) ([]models.Listing, error) {
	if err := scrollResults(ctx, sess, s.siteCfg, s.scraperCfg); err != nil {
		return nil, categorizeError(err, "scrolling results failed")
	}

	cards, err := sess.Cards(s.siteCfg.CardSelector)
	if err != nil {
		return nil, categorizeError(err, "querying listing cards failed")
	}

	out := make([]models.Listing, 0, len(cards))
	for i, card := range cards {
		l, err := extractCard(card, s.siteCfg)
		if err != nil {
			return nil, categorizeError(err, fmt.Sprintf("card %d", i))
		}
		out = append(out, l)
	}
	return out, nil
}

// launcher resolves a fetch mode to a registered launcher.
func (s *Scraper) launcher(mode string) (Launcher, error) {
	if mode == "" {
		mode = s.scraperCfg.FetchMode
	}
	l, ok := s.launchers[mode]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown fetch mode %q", mode), nil)
	}
	return l, nil
}

// categorizeError wraps raw errors into typed ScrapeErrors so failures are
// logged with a meaningful code.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	switch {
	case errors.As(err, &se):
		return models.NewScrapeError(se.Code, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	case errors.Is(err, ErrElementNotFound):
		return models.NewScrapeError(models.ErrCodeElementNotFound, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
