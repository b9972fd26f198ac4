// Package pricefetch fans price fetches out across all configured
// products, dispatching each URL to the fetch strategy of its site.
package pricefetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pricewatch/internal/cache/resultcache"
	"pricewatch/internal/domains"
	"pricewatch/internal/fetcher"
	"pricewatch/internal/input"
	"pricewatch/internal/logger"
	"pricewatch/internal/models"
	"pricewatch/internal/ratelimit"
)

// Service implements the FetchService interface
type Service struct {
	client        *http.Client
	limiter       ratelimit.Service
	scrapeResults resultcache.Service
	logger        logger.Service
	maxConcurrent int
	fetchTimeout  time.Duration
}

// NewService creates a new fetch orchestration service
func NewService(
	client *http.Client,
	limiter ratelimit.Service,
	scrapeResults resultcache.Service,
	logger logger.Service,
	maxConcurrent int,
	fetchTimeout time.Duration,
) FetchService {
	return &Service{
		client:        client,
		limiter:       limiter,
		scrapeResults: scrapeResults,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		fetchTimeout:  fetchTimeout,
	}
}

// fetchTask is one (product, url) pair bound to its site's fetcher
type fetchTask struct {
	url         string
	productName string
	fetch       fetcher.Service
}

// FetchAll fetches every product URL concurrently, bounded by the
// configured concurrency limit
func (s *Service) FetchAll(ctx context.Context, in *models.InputFile) []models.FetchResult {
	start := time.Now()

	tasks := s.buildTasks(ctx, in)

	s.logger.LogInfo(ctx, logger.OpBatchFetch, fmt.Sprintf("Starting batch fetch of %d product URLs", len(tasks)), map[string]interface{}{
		"tasks_count": len(tasks),
		"sites_count": len(in.Sites),
	})

	if len(tasks) == 0 {
		return []models.FetchResult{}
	}

	// Create results channel and response aggregator
	resultsChan := make(chan models.FetchResult, len(tasks))
	collectedChan := make(chan []models.FetchResult, 1)

	go func() {
		results := make([]models.FetchResult, 0, len(tasks))
		for result := range resultsChan {
			results = append(results, result)
		}
		collectedChan <- results
	}()

	// Use semaphore to limit concurrent fetches
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)

		go func(task fetchTask) {
			defer wg.Done()

			// A panicking fetch is logged and excluded; it must not
			// take the batch down with it.
			defer func() {
				if r := recover(); r != nil {
					s.logger.LogError(ctx, logger.OpBatchFetch, task.productName, fmt.Sprintf("Fetch panicked for %s", task.url), fmt.Errorf("%v", r), models.LogSeverityHigh, nil)
				}
			}()

			// Acquire semaphore
			sem <- struct{}{}
			defer func() { <-sem }()

			taskCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			resultsChan <- task.fetch.Fetch(taskCtx, task.url, task.productName)
		}(task)
	}

	// Wait for all workers to complete, then close results channel
	wg.Wait()
	close(resultsChan)

	results := <-collectedChan

	summary := models.RunSummary{Total: len(results)}
	for _, result := range results {
		if result.Success() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	s.logger.LogSuccess(ctx, logger.OpBatchFetch, "", "Completed batch fetch", map[string]interface{}{
		"total":       summary.Total,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return results
}

// buildTasks resolves each product URL to its site's fetcher. URLs
// whose registered domain has no site configuration are dropped with an
// error log.
func (s *Service) buildTasks(ctx context.Context, in *models.InputFile) []fetchTask {
	mapping := input.SiteMapping(in.Sites)

	fetchers := make(map[string]fetcher.Service, len(mapping))
	for domain, site := range mapping {
		switch site.Category {
		case models.SourceAPI:
			fetchers[domain] = fetcher.NewAPIFetcher(site, s.client, s.limiter, s.logger)
		case models.SourceScrape:
			fetchers[domain] = fetcher.NewScrapeFetcher(site, s.scrapeResults, s.client, s.limiter, s.logger)
		}
	}

	var tasks []fetchTask
	for _, product := range in.Products {
		for _, url := range product.URLs {
			domain, err := domains.Registered(url)
			if err != nil {
				s.logger.LogError(ctx, logger.OpResolveSource, product.ProductName, fmt.Sprintf("No configuration found for %s", url), err, models.LogSeverityMedium, nil)
				continue
			}
			f, ok := fetchers[domain]
			if !ok {
				s.logger.LogError(ctx, logger.OpResolveSource, product.ProductName, fmt.Sprintf("No configuration found for %s", url), nil, models.LogSeverityMedium, map[string]interface{}{
					"domain": domain,
				})
				continue
			}
			tasks = append(tasks, fetchTask{url: url, productName: product.ProductName, fetch: f})
		}
	}
	return tasks
}
