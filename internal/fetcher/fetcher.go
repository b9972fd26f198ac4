// Package fetcher retrieves product prices over HTTP. Two strategies
// share one retry core: APIFetcher decodes structured JSON endpoints
// and ScrapeFetcher extracts prices from HTML markup.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"pricewatch/internal/domains"
	"pricewatch/internal/logger"
	"pricewatch/internal/models"
	"pricewatch/internal/ratelimit"
)

const (
	maxAttempts  = 3
	backoffBase  = 2
	snippetLimit = 200
)

// defaultHeaders are sent with every request so sites serve the same
// markup they serve a desktop browser
var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "pl,en-US;q=0.7,en;q=0.3",
	"Cache-Control":   "no-cache",
}

// baseFetcher holds the pieces both strategies share: the HTTP client,
// the per-domain rate limiter, and the logger
type baseFetcher struct {
	client  *http.Client
	limiter ratelimit.Service
	logger  logger.Service
	// backoffUnit scales the retry backoff; one second in production,
	// shortened in tests
	backoffUnit time.Duration
}

func newBaseFetcher(client *http.Client, limiter ratelimit.Service, log logger.Service) baseFetcher {
	return baseFetcher{client: client, limiter: limiter, logger: log, backoffUnit: time.Second}
}

// requestWithRetry performs up to maxAttempts GETs against rawURL. Each
// attempt first acquires a rate-limit permit for the URL's registered
// domain and afterwards feeds the outcome back to the limiter. Between
// failed attempts it backs off backoffBase^attempt seconds. The final
// failure is returned as *models.HTTPError or *models.NetworkError.
func (f *baseFetcher) requestWithRetry(ctx context.Context, rawURL string, configure func(*http.Request)) ([]byte, error) {
	domain, err := domains.Registered(rawURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := f.limiter.Acquire(ctx, domain); err != nil {
			return nil, err
		}

		body, err := f.doRequest(ctx, rawURL, domain, configure)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt < maxAttempts-1 {
			backoff := time.Duration(intPow(backoffBase, attempt)) * f.backoffUnit
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, lastErr
}

// doRequest runs a single attempt and reports its outcome to the limiter
func (f *baseFetcher) doRequest(ctx context.Context, rawURL, domain string, configure func(*http.Request)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &models.NetworkError{Err: err}
	}
	for name, value := range defaultHeaders {
		req.Header.Set(name, value)
	}
	if configure != nil {
		configure(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.limiter.UpdateRate(domain, false)
		f.logger.LogWarning(ctx, logger.OpFetchPrice, domain, fmt.Sprintf("Request failed for %s", rawURL), map[string]interface{}{
			"error": err.Error(),
		})
		return nil, &models.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if readErr != nil {
			f.limiter.UpdateRate(domain, false)
			return nil, &models.NetworkError{Err: readErr}
		}
		f.limiter.UpdateRate(domain, true)
		return body, nil
	}

	f.limiter.UpdateRate(domain, false)
	if resp.StatusCode == http.StatusTooManyRequests {
		f.logger.LogWarning(ctx, logger.OpRateLimited, domain, fmt.Sprintf("Rate limited by %s", domain), nil)
	}

	snippet := string(body)
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit]
	}
	return nil, &models.HTTPError{Status: resp.StatusCode, Snippet: snippet}
}

// intPow computes base^exp for small non-negative exponents
func intPow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// failure builds the Failure variant of a fetch result
func failure(productName, url string, source models.SourceCategory, err error) models.FetchResult {
	return models.FetchResult{
		ProductName: productName,
		URL:         url,
		Source:      source,
		Error:       err.Error(),
	}
}
