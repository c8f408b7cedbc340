package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/homescout/cache"
	"github.com/use-agent/homescout/models"
	"github.com/use-agent/homescout/scraper"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testBaseURL = "https://listings.test"

type stubScraper struct {
	mu       sync.Mutex
	jobs     []scraper.Job
	listings []models.Listing
	err      error
}

func (s *stubScraper) Scrape(_ context.Context, job scraper.Job) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return s.listings, s.err
}

func (s *stubScraper) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func serve(h gin.HandlerFunc, target string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/scrape", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestScrape_MissingLocation(t *testing.T) {
	tests := []string{
		"/scrape",
		"/scrape?city=Austin",
		"/scrape?state=TX",
		"/scrape?city=&state=TX",
		"/scrape?city=Austin&state=",
		"/scrape?state=TX&max_pages=abc",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			sc := &stubScraper{}
			w := serve(Scrape(sc, testBaseURL, nil), target)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var body models.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != "Please provide both city and state" {
				t.Errorf("error = %q", body.Error)
			}
			if sc.calls() != 0 {
				t.Errorf("scraper called %d times", sc.calls())
			}
		})
	}
}

func TestScrape_InvalidOptionalParams(t *testing.T) {
	tests := []string{
		"/scrape?city=Austin&state=TX&max_pages=abc",
		"/scrape?city=Austin&state=TX&max_pages=101",
		"/scrape?city=Austin&state=TX&fetch_mode=ftp",
		"/scrape?city=Austin&state=TX&max_age=-5",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			sc := &stubScraper{}
			w := serve(Scrape(sc, testBaseURL, nil), target)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			if sc.calls() != 0 {
				t.Errorf("scraper called %d times", sc.calls())
			}
		})
	}
}

func TestScrape_Success(t *testing.T) {
	sc := &stubScraper{listings: []models.Listing{
		{Price: "$500,000", Address: "1 Main St, New York, NY"},
		{Price: "$650,000", Address: "2 Main St, New York, NY"},
	}}
	w := serve(Scrape(sc, testBaseURL, nil), "/scrape?city=New%20York&state=NY&max_pages=2&fetch_mode=http")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got []models.Listing
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(got) != 2 || got[0] != sc.listings[0] || got[1] != sc.listings[1] {
		t.Errorf("body = %v", got)
	}

	want := scraper.Job{URL: "https://listings.test/new-york-ny/", MaxPages: 2, FetchMode: "http"}
	if sc.calls() != 1 || sc.jobs[0] != want {
		t.Errorf("jobs = %+v, want [%+v]", sc.jobs, want)
	}
}

func TestScrape_EmptyResultIsArray(t *testing.T) {
	sc := &stubScraper{}
	w := serve(Scrape(sc, testBaseURL, nil), "/scrape?city=Nowhere&state=ZZ")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestScrape_FailureIsGeneric(t *testing.T) {
	errs := []error{
		models.NewScrapeError(models.ErrCodeTimeout, "deadline", context.DeadlineExceeded),
		models.NewScrapeError(models.ErrCodeElementNotFound, "card 3", nil),
		fmt.Errorf("plain failure"),
	}
	for _, scrapeErr := range errs {
		t.Run(models.ErrorCode(scrapeErr), func(t *testing.T) {
			sc := &stubScraper{err: scrapeErr, listings: []models.Listing{{Price: "$1", Address: "partial"}}}
			w := serve(Scrape(sc, testBaseURL, nil), "/scrape?city=Austin&state=TX")

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			if body := w.Body.String(); body != `{"error":"Failed to scrape properties"}` {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestScrape_Cache(t *testing.T) {
	cc := cache.New(10)
	defer cc.Stop()

	sc := &stubScraper{listings: []models.Listing{{Price: "$1", Address: "a"}}}
	h := Scrape(sc, testBaseURL, cc)

	// Without max_age the cache is neither read nor written.
	serve(h, "/scrape?city=Austin&state=TX")
	if cc.Len() != 0 {
		t.Fatalf("cache written without max_age")
	}

	w := serve(h, "/scrape?city=Austin&state=TX&max_age=60000")
	if w.Header().Get("X-Cache") != "miss" {
		t.Errorf("first cached request: X-Cache = %q, want miss", w.Header().Get("X-Cache"))
	}
	w = serve(h, "/scrape?city=Austin&state=TX&max_age=60000")
	if w.Header().Get("X-Cache") != "hit" {
		t.Errorf("second cached request: X-Cache = %q, want hit", w.Header().Get("X-Cache"))
	}
	if w.Body.String() != `[{"price":"$1","address":"a"}]` {
		t.Errorf("cached body = %s", w.Body.String())
	}
	if sc.calls() != 2 {
		t.Errorf("scraper called %d times, want 2", sc.calls())
	}

	// A different page bound is a different search.
	serve(h, "/scrape?city=Austin&state=TX&max_age=60000&max_pages=1")
	if sc.calls() != 3 {
		t.Errorf("scraper called %d times, want 3", sc.calls())
	}
}

func TestScrape_FailureIsNotCached(t *testing.T) {
	cc := cache.New(10)
	defer cc.Stop()

	sc := &stubScraper{err: fmt.Errorf("boom")}
	serve(Scrape(sc, testBaseURL, cc), "/scrape?city=Austin&state=TX&max_age=60000")
	if cc.Len() != 0 {
		t.Errorf("failed scrape was cached")
	}
}

type stubStats models.ScraperStats

func (s stubStats) Stats() models.ScraperStats { return models.ScraperStats(s) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name  string
		stats models.ScraperStats
		want  string
	}{
		{"idle", models.ScraperStats{MaxSessions: 4}, "healthy"},
		{"at threshold", models.ScraperStats{MaxSessions: 5, ActiveSessions: 4}, "healthy"},
		{"busy", models.ScraperStats{MaxSessions: 4, ActiveSessions: 4}, "degraded"},
		{"unlimited", models.ScraperStats{ActiveSessions: 50}, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", Health(stubStats(tt.stats), time.Now()))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var body models.HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.want {
				t.Errorf("status = %q, want %q", body.Status, tt.want)
			}
			if body.Stats != tt.stats {
				t.Errorf("stats = %+v, want %+v", body.Stats, tt.stats)
			}
			if body.Version != Version {
				t.Errorf("version = %q", body.Version)
			}
		})
	}
}
