package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pricewatch/internal/cache"
	"pricewatch/internal/cache/resultcache"
	"pricewatch/internal/config"
	"pricewatch/internal/history"
	"pricewatch/internal/input"
	"pricewatch/internal/logger"
	"pricewatch/internal/models"
	"pricewatch/internal/notify"
	"pricewatch/internal/pricefetch"
	"pricewatch/internal/ratelimit"
)

const (
	scrapeResultCacheSize = 50
	scrapeResultCacheTTL  = 5 * time.Minute
)

func main() {
	// Load configuration
	cfg := config.Load()

	if cfg.TargetSite == "" || cfg.NotificationURL == "" {
		log.Fatalf("TARGET_SITE and NOTIFICATION_URL must be set")
	}

	// Initialize logger
	appLogger, err := logger.NewFileLogger(cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	// Create run log event and make the run interruptible
	ctx, stop := signal.NotifyContext(
		logger.WithLogEvent(context.Background(), logger.NewRunLogEvent()),
		syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	appLogger.LogInfo(ctx, logger.OpRunStart, "Starting price watch run", map[string]interface{}{
		"input_path":    cfg.InputPath,
		"target_site":   cfg.TargetSite,
		"cache_backend": cfg.CacheBackend,
		"max_fetches":   cfg.MaxConcurrentFetches,
	})

	// Load and validate the input file
	in, err := input.Load(ctx, cfg.InputPath, appLogger)
	if err != nil {
		appLogger.LogError(ctx, logger.OpInputLoad, "", "Failed to load input file", err, models.LogSeverityHigh, nil)
		log.Fatalf("Failed to load input file: %v", err)
	}

	// Initialize cache persistence backend
	cacheStore, err := initializeCacheStore(cfg)
	if err != nil {
		appLogger.LogError(ctx, "cache_init", "", "Failed to initialize cache store", err, models.LogSeverityHigh, nil)
		log.Fatalf("Failed to initialize cache store: %v", err)
	}

	// Scrape results survive between runs through the cache store
	scrapeResults := resultcache.New(cache.New(scrapeResultCacheSize, scrapeResultCacheTTL, "fetch_results", cacheStore, appLogger))
	defer scrapeResults.Close()

	// Rate limiter picks up the per-domain rates learned in past runs
	limiter := ratelimit.NewDomainRateLimiter(cfg.RateLimitsPath, appLogger)
	defer func() {
		if err := limiter.SaveConfigs(); err != nil {
			log.Printf("Failed to save rate limits: %v", err)
		}
	}()

	client := &http.Client{Timeout: cfg.FetchTimeout}

	// Initialize price history storage
	historyStore, err := history.NewPostgresStore(ctx, cfg.DatabaseURL, cacheStore, appLogger)
	if err != nil {
		appLogger.LogError(ctx, logger.OpPriceUpdate, "", "Failed to initialize price history", err, models.LogSeverityHigh, nil)
		log.Fatalf("Failed to initialize price history: %v", err)
	}
	defer historyStore.Close()

	notifier := notify.NewManager(cfg.NotificationURL, client, appLogger)
	fetchService := pricefetch.NewService(client, limiter, scrapeResults, appLogger, cfg.MaxConcurrentFetches, cfg.FetchTimeout)

	fmt.Printf("🚀 Fetching prices for %d products across %d sites\n", len(in.Products), len(in.Sites))

	// Run the fetch pipeline
	results := fetchService.FetchAll(ctx, in)

	if err := writeResults(results, cfg.OutputPath); err != nil {
		appLogger.LogError(ctx, logger.OpRunComplete, "", "Failed to write results file", err, models.LogSeverityMedium, nil)
		log.Printf("Failed to write results file: %v", err)
	}

	// Record new prices and react to changes
	changed, err := historyStore.UpdatePrices(ctx, results)
	if err != nil {
		appLogger.LogError(ctx, logger.OpPriceUpdate, "", "Failed to update price history", err, models.LogSeverityHigh, nil)
		log.Fatalf("Failed to update price history: %v", err)
	}

	if len(changed) > 0 {
		historyStore.ProcessPriceChanges(ctx, notifier, changed, cfg.TargetSite)
	} else {
		appLogger.LogInfo(ctx, logger.OpPriceCompare, "No price changes detected", nil)
		fmt.Println("No price changes detected")
	}

	summary := models.RunSummary{Total: len(results)}
	for _, result := range results {
		if result.Success() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	appLogger.LogSuccess(ctx, logger.OpRunComplete, "", "Price watch run complete", map[string]interface{}{
		"total":          summary.Total,
		"succeeded":      summary.Succeeded,
		"failed":         summary.Failed,
		"changed_prices": len(changed),
	})

	fmt.Printf("✅ Run complete: %d/%d prices fetched, %d changed\n", summary.Succeeded, summary.Total, len(changed))
}

// initializeCacheStore picks the persistence backend for the caches
func initializeCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "redis":
		return cache.NewRedisStore(cfg.RedisURL)
	case "file":
		return cache.NewFileStore(cfg.CacheDir)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
	}
}

// writeResults dumps all fetch results, failures included, to the
// output file
func writeResults(results []models.FetchResult, path string) error {
	data, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o644)
}
