package pricefetch

import (
	"context"

	"pricewatch/internal/models"
)

// FetchService defines the interface for running one batch of price
// fetches across all configured products
type FetchService interface {
	// FetchAll fetches every (product, url) pair in the input
	// concurrently and returns the results in unspecified order. URLs
	// with no matching site configuration produce no result.
	FetchAll(ctx context.Context, input *models.InputFile) []models.FetchResult
}
