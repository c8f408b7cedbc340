package scraper

import (
	"fmt"

	"github.com/use-agent/homescout/config"
	"github.com/use-agent/homescout/models"
)

// extractCard reads the price and address of one listing card.
// Either field missing fails the card.
func extractCard(card Card, site config.SiteConfig) (models.Listing, error) {
	price, err := card.Text(site.PriceSelector)
	if err != nil {
		return models.Listing{}, fmt.Errorf("price: %w", err)
	}
	address, err := card.Text(site.AddressSelector)
	if err != nil {
		return models.Listing{}, fmt.Errorf("address: %w", err)
	}
	return models.Listing{Price: price, Address: address}, nil
}
