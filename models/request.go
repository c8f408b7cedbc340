package models

// SearchRequest holds the optional query parameters of GET /scrape.
// city and state are read by the handler before binding so that a
// missing location always yields the same message.
type SearchRequest struct {
	// MaxPages lowers the configured page bound for this request.
	// 0 means "use the server default".
	MaxPages int `form:"max_pages" binding:"omitempty,min=1,max=100"`

	// MaxAge allows serving a cached result younger than this many
	// milliseconds. 0 disables the cache for this request.
	MaxAge int `form:"max_age" binding:"omitempty,min=0"`

	// FetchMode overrides the configured session backend.
	// Allowed: "browser", "http".
	FetchMode string `form:"fetch_mode" binding:"omitempty,oneof=browser http"`
}
