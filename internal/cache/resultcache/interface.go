package resultcache

import (
	"pricewatch/internal/models"
)

// Service defines the interface for the typed fetch-result cache
// External packages should use this interface, not the concrete implementations
type Service interface {
	Get(url, productName string) (*models.FetchResult, bool)
	Set(url, productName string, result *models.FetchResult)
	Invalidate(url, productName string)
	Close()
}
