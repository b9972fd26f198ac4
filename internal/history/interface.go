package history

import (
	"context"

	"pricewatch/internal/models"
	"pricewatch/internal/notify"
)

// Service defines the interface for price history storage and change
// processing
// External packages should use this interface, not the concrete implementations
type Service interface {
	// UpdatePrices stores every successful result whose price differs
	// from the last stored price for its URL and returns the changed
	// (product, url) pairs.
	UpdatePrices(ctx context.Context, results []models.FetchResult) ([]models.ChangedPrice, error)

	// ProcessPriceChanges compares changed prices against the target
	// site and sends an alert for every competitor now undercutting it.
	// Per-product failures are logged, never propagated.
	ProcessPriceChanges(ctx context.Context, notifier notify.Service, changed []models.ChangedPrice, targetSite string)

	// GetLatestPrice returns the most recent stored price for a product
	// URL, or nil when none exists.
	GetLatestPrice(ctx context.Context, productName, url string) (*float64, error)

	// GetTargetPrice returns the most recent stored price for the
	// product on the target site, or nil when none exists.
	GetTargetPrice(ctx context.Context, productName, targetSite string) (*float64, error)

	// GetCompetitorURLs returns every known URL for the product that
	// does not belong to the target site.
	GetCompetitorURLs(ctx context.Context, productName, targetSite string) ([]string, error)

	// Close releases the connection pool and the internal caches.
	Close()
}

// Row is one result row of a single-row query
type Row interface {
	Scan(dest ...any) error
}

// Rows is the result set of a multi-row query
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier is the narrow database surface the store runs on; tests
// substitute a fake, production wraps a pgx pool
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}
