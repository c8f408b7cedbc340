package models

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "degraded"
	Uptime  string       `json:"uptime"`
	Stats   ScraperStats `json:"stats"`
	Version string       `json:"version"`
}

// ScraperStats reports session usage since startup.
type ScraperStats struct {
	MaxSessions    int   `json:"max_sessions"`
	ActiveSessions int   `json:"active_sessions"`
	TotalScrapes   int64 `json:"total_scrapes"`
	FailedScrapes  int64 `json:"failed_scrapes"`
}
