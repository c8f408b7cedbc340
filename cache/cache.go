// Package cache keeps recent scrape results in memory so that repeated
// searches within a caller-chosen age can skip the browser entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/homescout/models"
)

// entry holds cached listings with their creation timestamp.
type entry struct {
	listings  []models.Listing
	createdAt time.Time
}

// Cache is a simple in-memory cache for search results.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict expired entries
// (older than 1 hour) until Stop is called.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from the search URL, page bound and fetch mode.
func Key(searchURL string, maxPages int, fetchMode string) string {
	h := sha256.New()
	h.Write([]byte(searchURL))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(maxPages)))
	h.Write([]byte("|"))
	h.Write([]byte(fetchMode))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves cached listings if they exist and are younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// The returned slice is a copy.
func (c *Cache) Get(key string, maxAgeMs int) ([]models.Listing, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	return append(make([]models.Listing, 0, len(e.listings)), e.listings...), true
}

// Set stores listings in the cache. If the cache is at capacity,
// a random entry is evicted to make room.
func (c *Cache) Set(key string, listings []models.Listing) {
	if c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		listings:  append(make([]models.Listing, 0, len(listings)), listings...),
		createdAt: c.now(),
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictBefore(c.now().Add(-1 * time.Hour))
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) evictBefore(cutoff time.Time) {
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}
