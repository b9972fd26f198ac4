// Package input loads and validates the run configuration: the site
// definitions (one per domain) and the product/URL list the pipeline
// fetches.
package input

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"pricewatch/internal/domains"
	"pricewatch/internal/logger"
	"pricewatch/internal/models"
)

// rawFile mirrors the on-disk layout before validation
type rawFile struct {
	Sites    []json.RawMessage `json:"sites"`
	Products []*models.Product `json:"products"`
}

// Load reads the input file, validates each site, normalizes root
// domains, and filters out disabled sites together with any product URL
// pointing at them. Invalid site entries are logged and skipped; the
// load only fails when the file is unreadable or no usable site remains.
func Load(ctx context.Context, path string, log logger.Service) (*models.InputFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var file rawFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse input file: %w", err)
	}

	disabled := make(map[string]bool)
	var sites []*models.Site
	for _, rawSite := range file.Sites {
		site, err := validateSite(rawSite)
		if err != nil {
			log.LogError(ctx, logger.OpInputLoad, "", "Invalid site config, skipping", err, models.LogSeverityMedium, nil)
			continue
		}
		if site.Disabled {
			disabled[site.RootDomain] = true
			continue
		}
		sites = append(sites, site)
	}

	if len(sites) == 0 {
		return nil, models.ErrNoSites
	}

	products := filterProducts(ctx, file.Products, disabled, log)

	log.LogInfo(ctx, logger.OpInputLoad, "Loaded input configuration", map[string]interface{}{
		"sites":    len(sites),
		"products": len(products),
	})

	return &models.InputFile{Sites: sites, Products: products}, nil
}

// validateSite checks one site entry and normalizes its root domain
func validateSite(raw json.RawMessage) (*models.Site, error) {
	var site models.Site
	if err := json.Unmarshal(raw, &site); err != nil {
		return nil, fmt.Errorf("malformed site entry: %w", err)
	}

	if site.RootDomain == "" {
		return nil, fmt.Errorf("site entry missing root_domain")
	}

	normalized, err := domains.Registered(site.RootDomain)
	if err != nil {
		return nil, models.NewSiteError(site.RootDomain, "invalid root domain", err)
	}
	site.RootDomain = normalized

	switch site.Category {
	case models.SourceAPI:
		if site.Credentials == nil || site.Credentials.ConsumerKey == "" || site.Credentials.ConsumerSecret == "" {
			return nil, models.NewSiteError(site.RootDomain, "api site missing credentials", nil)
		}
	case models.SourceScrape:
		if site.Selectors == nil {
			return nil, models.NewSiteError(site.RootDomain, "scrape site missing selectors", nil)
		}
	default:
		return nil, models.NewSiteError(site.RootDomain, fmt.Sprintf("unknown category %q", site.Category), nil)
	}

	return &site, nil
}

// filterProducts drops URLs whose domain is disabled and products left
// with no URLs at all
func filterProducts(ctx context.Context, products []*models.Product, disabled map[string]bool, log logger.Service) []*models.Product {
	var kept []*models.Product
	for _, product := range products {
		var urls []string
		for _, url := range product.URLs {
			domain, err := domains.Registered(url)
			if err != nil {
				log.LogError(ctx, logger.OpInputLoad, product.ProductName, "Dropping unparseable product URL", err, models.LogSeverityLow, map[string]interface{}{
					"url": url,
				})
				continue
			}
			if disabled[domain] {
				continue
			}
			urls = append(urls, url)
		}
		if len(urls) > 0 {
			kept = append(kept, &models.Product{ProductName: product.ProductName, URLs: urls})
		}
	}
	return kept
}

// SiteMapping builds the domain to site lookup table used by the
// orchestrator to resolve each task's source configuration
func SiteMapping(sites []*models.Site) map[string]*models.Site {
	mapping := make(map[string]*models.Site, len(sites))
	for _, site := range sites {
		if !site.Disabled {
			mapping[site.RootDomain] = site
		}
	}
	return mapping
}
