package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"pricewatch/internal/logger"
	"pricewatch/internal/models"
	"pricewatch/internal/ratelimit"
)

// priceFieldPattern accepts plain decimal numbers only, rejecting
// currency symbols, separators and scientific notation
var priceFieldPattern = regexp.MustCompile(`^\d+\.?\d*$`)

// apiFetcher fetches prices from a structured JSON endpoint using the
// site's basic-auth credentials
type apiFetcher struct {
	baseFetcher
	site *models.Site
}

// NewAPIFetcher creates a fetcher for one API site
func NewAPIFetcher(site *models.Site, client *http.Client, limiter ratelimit.Service, log logger.Service) Service {
	return &apiFetcher{
		baseFetcher: newBaseFetcher(client, limiter, log),
		site:        site,
	}
}

// Fetch retrieves and validates the price fields for one product URL
func (f *apiFetcher) Fetch(ctx context.Context, url, productName string) models.FetchResult {
	body, err := f.requestWithRetry(ctx, url, func(req *http.Request) {
		if f.site.Credentials != nil {
			req.SetBasicAuth(f.site.Credentials.ConsumerKey, f.site.Credentials.ConsumerSecret)
		}
	})
	if err != nil {
		f.logger.LogError(ctx, logger.OpFetchPrice, productName, fmt.Sprintf("API fetch failed for %s", url), err, models.LogSeverityMedium, nil)
		return failure(productName, url, f.site.Category, err)
	}

	data, err := f.parseBody(body)
	if err != nil {
		f.logger.LogError(ctx, logger.OpParsePrice, productName, fmt.Sprintf("No usable price in API response from %s", url), err, models.LogSeverityLow, nil)
		return failure(productName, url, f.site.Category, err)
	}

	f.logger.LogSuccess(ctx, logger.OpFetchPrice, productName, fmt.Sprintf("Fetched price %.2f from %s", data.Price, url), nil)
	return models.FetchResult{
		ProductName: productName,
		URL:         url,
		Source:      f.site.Category,
		Data:        data,
	}
}

// parseBody decodes the response and validates each price field. A
// response without a positive price field is an error even when other
// fields are present.
func (f *apiFetcher) parseBody(body []byte) (*models.PriceData, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return nil, &models.ParseError{Reason: "No valid price found in API response"}
	}

	price := validatedPrice(payload["price"])
	if price == nil || *price == 0 {
		return nil, &models.ParseError{Reason: "No valid price found in API response"}
	}

	return &models.PriceData{
		Price:        *price,
		RegularPrice: validatedPrice(payload["regular_price"]),
		SalePrice:    validatedPrice(payload["sale_price"]),
	}, nil
}

// validatedPrice accepts a price field as either a JSON number or a
// numeric string; anything else is treated as absent
func validatedPrice(value interface{}) *float64 {
	var text string
	switch v := value.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	default:
		return nil
	}

	if !priceFieldPattern.MatchString(text) {
		return nil
	}
	parsed, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &parsed
}
