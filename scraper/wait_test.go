package scraper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitStableCount_WaitsForQuietWindow(t *testing.T) {
	start := time.Now()
	// Nothing for 60ms, then the lazy batch lands.
	count := func() (int, error) {
		if time.Since(start) < 60*time.Millisecond {
			return 0, nil
		}
		return 5, nil
	}

	ok, err := waitStableCount(context.Background(), 2*time.Second, 100*time.Millisecond, count)
	if err != nil || !ok {
		t.Fatalf("waitStableCount() = %v, %v; want true, nil", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 160*time.Millisecond {
		t.Errorf("settled after %v, before the late batch had been quiet for 100ms", elapsed)
	}
	if n, _ := count(); n != 5 {
		t.Errorf("count = %d at return, want 5", n)
	}
}

func TestWaitStableCount_UnchangedCountWaitsFullWindow(t *testing.T) {
	start := time.Now()
	ok, err := waitStableCount(context.Background(), 2*time.Second, 80*time.Millisecond, func() (int, error) {
		return 7, nil
	})
	if err != nil || !ok {
		t.Fatalf("waitStableCount() = %v, %v; want true, nil", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("settled after %v, want at least 80ms", elapsed)
	}
}

func TestWaitStableCount_TimeoutIsNotAnError(t *testing.T) {
	var n atomic.Int32
	start := time.Now()
	ok, err := waitStableCount(context.Background(), 150*time.Millisecond, 100*time.Millisecond, func() (int, error) {
		return int(n.Add(1)), nil // never settles
	})
	if err != nil || ok {
		t.Fatalf("waitStableCount() = %v, %v; want false, nil", ok, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("waitStableCount overran its timeout: %v", elapsed)
	}
}

func TestWaitStableCount_PropagatesCountError(t *testing.T) {
	boom := errors.New("boom")
	_, err := waitStableCount(context.Background(), time.Second, 50*time.Millisecond, func() (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestWaitStableCount_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := waitStableCount(ctx, time.Minute, time.Second, func() (int, error) {
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWaitStableCount_ZeroQuietReturnsImmediately(t *testing.T) {
	calls := 0
	ok, err := waitStableCount(context.Background(), time.Second, 0, func() (int, error) {
		calls++
		return 3, nil
	})
	if err != nil || !ok || calls != 1 {
		t.Errorf("waitStableCount() = %v, %v after %d calls; want true, nil after 1", ok, err, calls)
	}
}
