package fetcher

import (
	"context"

	"pricewatch/internal/models"
)

// Service defines the interface for fetching one product's price from
// one URL. Fetch never returns a Go error: every outcome, including
// exhausted retries and unparseable responses, is reported through the
// result's Error field so one bad URL cannot abort a batch.
type Service interface {
	Fetch(ctx context.Context, url, productName string) models.FetchResult
}
