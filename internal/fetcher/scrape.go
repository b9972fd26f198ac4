package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"pricewatch/internal/cache/resultcache"
	"pricewatch/internal/logger"
	"pricewatch/internal/models"
	"pricewatch/internal/ratelimit"

	"github.com/PuerkitoBio/goquery"
)

// scrapeFetcher extracts prices from HTML markup using the site's CSS
// selectors. Results, including failures, are cached so repeated URLs
// within the cache TTL reuse the first outcome.
type scrapeFetcher struct {
	baseFetcher
	site    *models.Site
	results resultcache.Service
}

// NewScrapeFetcher creates a fetcher for one scrape site backed by a
// shared fetch-result cache
func NewScrapeFetcher(site *models.Site, results resultcache.Service, client *http.Client, limiter ratelimit.Service, log logger.Service) Service {
	return &scrapeFetcher{
		baseFetcher: newBaseFetcher(client, limiter, log),
		site:        site,
		results:     results,
	}
}

// Fetch retrieves the page and extracts prices via the configured
// selectors, consulting the result cache first
func (f *scrapeFetcher) Fetch(ctx context.Context, url, productName string) models.FetchResult {
	if cached, ok := f.results.Get(url, productName); ok {
		f.logger.LogInfo(ctx, logger.OpCacheHit, fmt.Sprintf("Reusing cached fetch result for %s", url), map[string]interface{}{
			"product_name": productName,
		})
		return *cached
	}

	result := f.fetch(ctx, url, productName)
	f.results.Set(url, productName, &result)
	return result
}

func (f *scrapeFetcher) fetch(ctx context.Context, url, productName string) models.FetchResult {
	body, err := f.requestWithRetry(ctx, url, nil)
	if err != nil {
		f.logger.LogError(ctx, logger.OpFetchPrice, productName, fmt.Sprintf("Scrape fetch failed for %s", url), err, models.LogSeverityMedium, nil)
		return failure(productName, url, f.site.Category, err)
	}

	data, err := f.parseHTML(ctx, body, url)
	if err != nil {
		f.logger.LogError(ctx, logger.OpParsePrice, productName, fmt.Sprintf("No usable price at %s", url), err, models.LogSeverityLow, nil)
		return failure(productName, url, f.site.Category, err)
	}

	f.logger.LogSuccess(ctx, logger.OpFetchPrice, productName, fmt.Sprintf("Scraped price %.2f from %s", data.Price, url), nil)
	return models.FetchResult{
		ProductName: productName,
		URL:         url,
		Source:      f.site.Category,
		Data:        data,
	}
}

// parseHTML applies the configured selectors to the document. The
// regular/sale pair takes precedence; the generic price selector is
// consulted only when the pair is incomplete, and then fills both the
// price and the regular price.
func (f *scrapeFetcher) parseHTML(ctx context.Context, body []byte, url string) (*models.PriceData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &models.ParseError{Reason: "No valid prices found in HTML"}
	}

	extract := func(field string) float64 {
		selector := f.site.Selectors.Get(field)
		if selector == "" {
			return 0
		}
		return f.extractPrice(ctx, doc, selector, field, url)
	}

	regular := extract("regular_price")
	sale := extract("sale_price")

	var price float64
	if regular != 0 && sale != 0 {
		price = sale
	} else if generic := extract("price"); generic != 0 {
		price = generic
		if regular == 0 {
			regular = generic
		}
	}

	if price == 0 {
		return nil, &models.ParseError{Reason: "No valid prices found in HTML"}
	}

	data := &models.PriceData{Price: price}
	if regular != 0 {
		data.RegularPrice = &regular
	}
	if sale != 0 {
		data.SalePrice = &sale
	}
	return data, nil
}

// extractPrice collects the prices of all matching, non-skipped
// elements; zero means none found. Distinct candidates are resolved by
// taking the lowest one.
func (f *scrapeFetcher) extractPrice(ctx context.Context, doc *goquery.Document, selector, field, url string) float64 {
	var prices []float64
	distinct := make(map[float64]struct{})

	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if f.shouldSkip(sel) {
			return
		}
		price, ok := normalizePrice(sel.Text())
		if !ok {
			return
		}
		prices = append(prices, price)
		distinct[price] = struct{}{}
	})

	if len(prices) == 0 {
		return 0
	}

	lowest := prices[0]
	for _, p := range prices[1:] {
		if p < lowest {
			lowest = p
		}
	}

	if len(distinct) > 1 {
		f.logger.LogWarning(ctx, logger.OpParsePrice, field, fmt.Sprintf("Multiple prices found at %s, taking lowest", url), map[string]interface{}{
			"prices": prices,
			"chosen": lowest,
		})
	}

	return lowest
}

// shouldSkip applies the site's element rules: text terms the element
// must (or must not) contain, and descendant class names that mark an
// element as unwanted
func (f *scrapeFetcher) shouldSkip(sel *goquery.Selection) bool {
	if f.site.Rules == nil {
		return false
	}

	text := strings.TrimSpace(sel.Text())

	for term, mustContain := range f.site.Rules.TextContains {
		if strings.Contains(text, term) != mustContain {
			return true
		}
	}

	for class, skip := range f.site.Rules.ElementSelector {
		if skip && sel.Find("."+class).Length() > 0 {
			return true
		}
	}

	return false
}

// normalizePrice turns raw element text into a number. Spaces and
// non-numeric characters are dropped, commas become dots, and when
// several dots remain the last group is taken as the decimal part
// ("1.234,56" -> 1234.56).
func normalizePrice(text string) (float64, bool) {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}

	if idx := strings.LastIndex(cleaned, "."); idx >= 0 {
		integer := strings.ReplaceAll(cleaned[:idx], ".", "")
		if integer == "" {
			integer = "0"
		}
		decimal := cleaned[idx+1:]
		if decimal != "" {
			cleaned = integer + "." + decimal
		} else {
			cleaned = integer
		}
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}
