// Package scrapers defines the adapter contracts the orchestrator drives
// and the sourcing-platform search client.
package scrapers

import (
	"context"
	"fmt"

	"arbitrage-scout/internal/models"
)

// StoreScraper is a site-specific scraper adapter. Implementations drive
// pages through the shared browser session handed to them at construction;
// they never launch their own browser.
type StoreScraper interface {
	// FetchSalesData returns the 30-day sales summary for a store.
	FetchSalesData(ctx context.Context, storeID string) (models.Envelope, error)

	// FetchProducts returns up to maxCount product rows for a store.
	FetchProducts(ctx context.Context, storeID string, maxCount int) (models.Envelope, error)

	// FetchProductDetail resolves one product listing page.
	FetchProductDetail(ctx context.Context, url string) (models.Envelope, error)
}

// SourcingSearcher finds wholesale offers for a product image.
type SourcingSearcher interface {
	SearchByImage(ctx context.Context, imageURL string) ([]models.CandidateSourceOffer, error)
}

// DecodeEnvelope converts a successful envelope payload into a typed value
// via JSON round-trip semantics handled by the concrete decoder func.
func DecodeEnvelope(env models.Envelope, operation string) (map[string]interface{}, error) {
	if !env.Success {
		return nil, fmt.Errorf("%s failed upstream: %s", operation, env.ErrorMessage)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%s returned an empty payload", operation)
	}
	return env.Data, nil
}
