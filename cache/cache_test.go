package cache

import (
	"testing"
	"time"

	"github.com/use-agent/homescout/models"
)

func newTestCache(t *testing.T, maxEntries int) (*Cache, *time.Time) {
	t.Helper()
	c := New(maxEntries)
	t.Cleanup(c.Stop)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestKey(t *testing.T) {
	base := Key("https://listings.test/austin-tx/", 0, "browser")
	if base != Key("https://listings.test/austin-tx/", 0, "browser") {
		t.Error("same inputs should give the same key")
	}
	if base == Key("https://listings.test/austin-tx/", 2, "browser") {
		t.Error("page bound should change the key")
	}
	if base == Key("https://listings.test/austin-tx/", 0, "http") {
		t.Error("fetch mode should change the key")
	}
	if base == Key("https://listings.test/dallas-tx/", 0, "browser") {
		t.Error("search URL should change the key")
	}
}

func TestGet_MaxAge(t *testing.T) {
	c, now := newTestCache(t, 10)
	want := []models.Listing{{Price: "$1", Address: "a"}}
	c.Set("k", want)

	if _, hit := c.Get("k", 0); hit {
		t.Error("max age 0 should never hit")
	}
	if got, hit := c.Get("k", 1000); !hit || len(got) != 1 || got[0] != want[0] {
		t.Errorf("fresh entry: hit=%v got=%v", hit, got)
	}

	*now = now.Add(2 * time.Second)
	if _, hit := c.Get("k", 1000); hit {
		t.Error("entry older than max age should miss")
	}
	if _, hit := c.Get("k", 5000); !hit {
		t.Error("entry within a larger max age should hit")
	}
	if _, hit := c.Get("missing", 5000); hit {
		t.Error("unknown key should miss")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	c, _ := newTestCache(t, 10)
	src := []models.Listing{{Price: "$1", Address: "a"}}
	c.Set("k", src)
	src[0].Price = "changed"

	got, _ := c.Get("k", 1000)
	got[0].Address = "changed"

	again, _ := c.Get("k", 1000)
	if again[0] != (models.Listing{Price: "$1", Address: "a"}) {
		t.Errorf("cached entry was mutated: %+v", again[0])
	}
}

func TestGet_EmptyResultIsNotNil(t *testing.T) {
	c, _ := newTestCache(t, 10)
	c.Set("k", []models.Listing{})

	got, hit := c.Get("k", 1000)
	if !hit || got == nil {
		t.Errorf("hit=%v got=%#v, want empty non-nil slice", hit, got)
	}
}

func TestSet_EvictsAtCapacity(t *testing.T) {
	c, _ := newTestCache(t, 2)
	c.Set("a", nil)
	c.Set("b", nil)
	c.Set("b", nil) // overwrite does not evict
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}

	c.Set("c", nil)
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2 after eviction", c.Len())
	}
	if _, hit := c.Get("c", 1000); !hit {
		t.Error("newest entry should be present")
	}
}

func TestSet_DisabledCache(t *testing.T) {
	c, _ := newTestCache(t, 0)
	c.Set("k", []models.Listing{{Price: "$1", Address: "a"}})
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestEvictBefore(t *testing.T) {
	c, now := newTestCache(t, 10)
	c.Set("old", nil)
	*now = now.Add(2 * time.Hour)
	c.Set("new", nil)

	c.evictBefore(now.Add(-1 * time.Hour))

	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	if _, hit := c.Get("new", 1000); !hit {
		t.Error("recent entry should survive cleanup")
	}
}
