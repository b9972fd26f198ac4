// Package resultcache is a typed view over the generic expiring cache
// for scrape fetch results, keyed by a deterministic function of the
// fetch arguments so repeated requests for the same URL within one run
// reuse the first response.
package resultcache

import (
	"encoding/json"
	"fmt"

	"pricewatch/internal/cache"
	"pricewatch/internal/models"
)

// resultCache implements Service using a generic cache
type resultCache struct {
	cache cache.Service
}

// New creates a new fetch-result cache on top of the given cache
func New(c cache.Service) Service {
	return &resultCache{cache: c}
}

// Key builds the deterministic cache key for one fetch invocation
func Key(url, productName string) string {
	return fmt.Sprintf("fetch:%s:%s", url, productName)
}

// Get retrieves a cached fetch result
func (c *resultCache) Get(url, productName string) (*models.FetchResult, bool) {
	value, ok := c.cache.Get(Key(url, productName))
	if !ok {
		return nil, false
	}

	// Handle type conversion
	switch v := value.(type) {
	case *models.FetchResult:
		// Live entries hold the actual object
		return v, true
	case models.FetchResult:
		return &v, true
	case json.RawMessage:
		// Entries restored from a snapshot hold raw JSON
		var result models.FetchResult
		if err := json.Unmarshal(v, &result); err != nil {
			return nil, false
		}
		return &result, true
	default:
		return nil, false
	}
}

// Set stores a fetch result; failures are cached alongside successes so
// a failing URL is not re-fetched within the TTL either
func (c *resultCache) Set(url, productName string, result *models.FetchResult) {
	c.cache.Set(Key(url, productName), result)
}

// Invalidate removes the cached result for one fetch invocation
func (c *resultCache) Invalidate(url, productName string) {
	c.cache.Set(Key(url, productName), nil)
}

// Close releases the underlying cache
func (c *resultCache) Close() {
	c.cache.Close()
}
