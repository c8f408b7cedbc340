package models

// Listing is one property card as read from a search results page.
type Listing struct {
	Price   string `json:"price"`
	Address string `json:"address"`
}
