package scraper

import (
	"context"
	"time"
)

const (
	pollMin = 10 * time.Millisecond
	pollMax = 100 * time.Millisecond
)

// waitStableCount polls count until its value has not changed for quiet,
// i.e. lazy loading has stopped adding elements. Running out of time is
// not an error: it returns false, nil so callers can proceed with
// whatever rendered.
func waitStableCount(ctx context.Context, timeout, quiet time.Duration, count func() (int, error)) (bool, error) {
	interval := min(max(quiet/5, pollMin), pollMax)
	deadline := time.Now().Add(timeout)

	last, err := count()
	if err != nil {
		return false, err
	}
	changed := time.Now()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if time.Since(changed) >= quiet {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}

		n, err := count()
		if err != nil {
			return false, err
		}
		if n != last {
			last = n
			changed = time.Now()
		}
	}
}
