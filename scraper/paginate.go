package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/homescout/config"
	"golang.org/x/time/rate"
)

// scrollResults scrolls the results container step by step so that the
// site renders its lazily loaded cards. After every step the session
// waits for the page to settle, then the card count must stay unchanged
// for SettleQuiet. Running out of settle time is not an error.
func scrollResults(ctx context.Context, sess Session, site config.SiteConfig, cfg config.ScraperConfig) error {
	countCards := func() (int, error) {
		cards, err := sess.Cards(site.CardSelector)
		return len(cards), err
	}

	for i := 0; i < cfg.ScrollSteps; i++ {
		if err := sess.ScrollBy(site.ContainerID, cfg.ScrollDistance); err != nil {
			return fmt.Errorf("scroll step %d: %w", i, err)
		}

		start := time.Now()
		if err := sess.WaitSettled(cfg.SettleTimeout); err != nil {
			return fmt.Errorf("scroll step %d: %w", i, err)
		}
		remaining := max(cfg.SettleTimeout-time.Since(start), cfg.SettleQuiet)

		stable, err := waitStableCount(ctx, remaining, cfg.SettleQuiet, countCards)
		if err != nil {
			return fmt.Errorf("scroll step %d: %w", i, err)
		}
		if !stable {
			slog.Debug("card count did not settle, proceeding with current DOM", "step", i)
		}
	}
	return nil
}

// advance moves to the next results page. It reports false when the page
// has no next-page control. Transitions are paced by limiter when set.
func advance(ctx context.Context, sess Session, site config.SiteConfig, limiter *rate.Limiter) (bool, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	return sess.ClickNext(site.NextPageSelector)
}
