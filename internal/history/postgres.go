// Package history stores fetched prices in Postgres, detects changes
// between runs, and turns changes into competitor price comparisons.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"pricewatch/internal/cache"
	"pricewatch/internal/domains"
	"pricewatch/internal/logger"
	"pricewatch/internal/models"
	"pricewatch/internal/notify"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	priceCacheSize      = 200
	priceCacheTTL       = 10 * time.Minute
	competitorCacheSize = 100
	competitorCacheTTL  = 30 * time.Minute

	// Concurrency limit for competitor checks within one product
	maxConcurrentChecks = 5
)

// PostgresStore implements the Service interface
type PostgresStore struct {
	db          Querier
	pool        *pgxpool.Pool
	prices      cache.Service
	competitors cache.Service
	logger      logger.Service
}

// NewPostgresStore connects to the database, creates the price history
// table if needed, and wires up the read caches. cacheStore may be nil
// for purely in-memory caching.
func NewPostgresStore(ctx context.Context, connString string, cacheStore cache.Store, log logger.Service) (Service, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	// Keep lifetimes finite so connections silently dropped by the
	// network get refreshed.
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	config.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		return d.DialContext(ctx, "tcp", addr)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	store := newPostgresStore(poolQuerier{pool: pool}, cacheStore, log)
	store.pool = pool

	if err := store.createTableIfNotExists(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create price history table: %w", err)
	}

	return store, nil
}

// newPostgresStore creates the concrete implementation on any Querier
func newPostgresStore(db Querier, cacheStore cache.Store, log logger.Service) *PostgresStore {
	return &PostgresStore{
		db:          db,
		prices:      cache.New(priceCacheSize, priceCacheTTL, "prices", cacheStore, log),
		competitors: cache.New(competitorCacheSize, competitorCacheTTL, "competitor_urls", cacheStore, log),
		logger:      log,
	}
}

// createTableIfNotExists creates the price history table and indexes
func (s *PostgresStore) createTableIfNotExists(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS price_history (
			id BIGSERIAL PRIMARY KEY,
			product_name VARCHAR(255) NOT NULL,
			url VARCHAR(512) NOT NULL,
			price DOUBLE PRECISION,
			regular_price DOUBLE PRECISION,
			sale_price DOUBLE PRECISION,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_price_history_url_timestamp ON price_history(url, timestamp);
		CREATE INDEX IF NOT EXISTS idx_price_history_product_name ON price_history(product_name);
	`

	return s.db.Exec(ctx, query)
}

// UpdatePrices compares each successful result against the last stored
// price for its URL and records those that changed
func (s *PostgresStore) UpdatePrices(ctx context.Context, results []models.FetchResult) ([]models.ChangedPrice, error) {
	changed := make([]models.ChangedPrice, 0)

	for _, result := range results {
		if !result.Success() {
			continue
		}

		oldPrice, err := s.latestPriceFromDB(ctx, result.URL)
		if err != nil {
			s.logger.LogError(ctx, logger.OpPriceUpdate, result.ProductName, fmt.Sprintf("Failed to read last price for %s", result.URL), err, models.LogSeverityMedium, nil)
			continue
		}

		if oldPrice != nil && *oldPrice == result.Data.Price {
			continue
		}

		if err := s.insertPrice(ctx, result); err != nil {
			s.logger.LogError(ctx, logger.OpPriceUpdate, result.ProductName, fmt.Sprintf("Failed to store price for %s", result.URL), err, models.LogSeverityMedium, nil)
			continue
		}

		changed = append(changed, models.ChangedPrice{ProductName: result.ProductName, URL: result.URL})

		s.logger.LogInfo(ctx, logger.OpPriceUpdate, fmt.Sprintf("Price changed for %s at %s", result.ProductName, result.URL), map[string]interface{}{
			"old_price": oldPrice,
			"new_price": result.Data.Price,
		})
	}

	return changed, nil
}

// insertPrice writes one price row and invalidates the cache entries it
// makes stale
func (s *PostgresStore) insertPrice(ctx context.Context, result models.FetchResult) error {
	query := `
		INSERT INTO price_history (product_name, url, price, regular_price, sale_price)
		VALUES ($1, $2, $3, $4, $5)
	`

	err := s.db.Exec(ctx, query, result.ProductName, result.URL, result.Data.Price, result.Data.RegularPrice, result.Data.SalePrice)
	if err != nil {
		return err
	}

	s.prices.Set(priceKey(result.ProductName, result.URL), nil)
	s.prices.Set(targetPriceKey(result.ProductName), nil)
	return nil
}

// latestPriceFromDB reads the most recent stored price for a URL,
// bypassing the cache
func (s *PostgresStore) latestPriceFromDB(ctx context.Context, url string) (*float64, error) {
	query := `
		SELECT price FROM price_history
		WHERE url = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var price float64
	err := s.db.QueryRow(ctx, query, url).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &price, nil
}

// GetLatestPrice returns the most recent stored price for a product URL
func (s *PostgresStore) GetLatestPrice(ctx context.Context, productName, url string) (*float64, error) {
	key := priceKey(productName, url)
	if value, ok := s.prices.Get(key); ok {
		if price := cachedFloat(value); price != nil {
			return price, nil
		}
	}

	price, err := s.latestPriceFromDB(ctx, url)
	if err != nil {
		return nil, err
	}
	if price != nil {
		s.prices.Set(key, *price)
	}
	return price, nil
}

// GetTargetPrice returns the most recent stored price for the product
// on the target site
func (s *PostgresStore) GetTargetPrice(ctx context.Context, productName, targetSite string) (*float64, error) {
	key := targetPriceKey(productName)
	if value, ok := s.prices.Get(key); ok {
		if price := cachedFloat(value); price != nil {
			return price, nil
		}
	}

	query := `
		SELECT price FROM price_history
		WHERE product_name = $1 AND url LIKE '%' || $2 || '%'
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var price float64
	err := s.db.QueryRow(ctx, query, productName, targetSite).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.prices.Set(key, price)
	return &price, nil
}

// GetCompetitorURLs returns every known URL for the product outside the
// target site. Unlike prices, an empty list is cached too.
func (s *PostgresStore) GetCompetitorURLs(ctx context.Context, productName, targetSite string) ([]string, error) {
	key := competitorKey(productName)
	if value, ok := s.competitors.Get(key); ok {
		if urls := cachedStrings(value); urls != nil {
			return urls, nil
		}
	}

	query := `
		SELECT DISTINCT url FROM price_history
		WHERE product_name = $1 AND url NOT LIKE '%' || $2 || '%'
	`

	rows, err := s.db.Query(ctx, query, productName, targetSite)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make([]string, 0)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.competitors.Set(key, urls)
	return urls, nil
}

// ProcessPriceChanges walks the changed prices product by product. A
// change on the target site re-checks every competitor; a change
// elsewhere checks only the changed URLs against the target price.
func (s *PostgresStore) ProcessPriceChanges(ctx context.Context, notifier notify.Service, changed []models.ChangedPrice, targetSite string) {
	s.logger.LogInfo(ctx, logger.OpPriceCompare, fmt.Sprintf("Processing %d price changes", len(changed)), nil)

	productURLs := make(map[string][]string)
	for _, change := range changed {
		productURLs[change.ProductName] = append(productURLs[change.ProductName], change.URL)
	}

	for product, urls := range productURLs {
		targetChanged := false
		for _, url := range urls {
			if strings.Contains(url, targetSite) {
				targetChanged = true
				break
			}
		}

		if targetChanged {
			s.checkAllCompetitors(ctx, notifier, product, targetSite)
			continue
		}

		for _, url := range urls {
			s.checkPriceAgainstTarget(ctx, notifier, product, url, targetSite)
		}
	}
}

// checkAllCompetitors re-checks every competitor URL for the product
// concurrently
func (s *PostgresStore) checkAllCompetitors(ctx context.Context, notifier notify.Service, product, targetSite string) {
	urls, err := s.GetCompetitorURLs(ctx, product, targetSite)
	if err != nil {
		s.logger.LogError(ctx, logger.OpPriceCompare, product, "Competitor check failed", err, models.LogSeverityMedium, nil)
		return
	}

	g, checkCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)

	for _, url := range urls {
		url := url
		g.Go(func() error {
			s.checkPriceAgainstTarget(checkCtx, notifier, product, url, targetSite)
			return nil
		})
	}
	g.Wait()
}

// checkPriceAgainstTarget alerts when the price at url undercuts the
// target site's price for the product. Failures are logged, not
// propagated; one broken comparison must not silence the others.
func (s *PostgresStore) checkPriceAgainstTarget(ctx context.Context, notifier notify.Service, product, url, targetSite string) {
	targetPrice, err := s.GetTargetPrice(ctx, product, targetSite)
	if err != nil {
		s.logger.LogError(ctx, logger.OpPriceCompare, product, fmt.Sprintf("Price check failed for %s", url), err, models.LogSeverityMedium, nil)
		return
	}
	if targetPrice == nil {
		return
	}

	currentPrice, err := s.GetLatestPrice(ctx, product, url)
	if err != nil {
		s.logger.LogError(ctx, logger.OpPriceCompare, product, fmt.Sprintf("Price check failed for %s", url), err, models.LogSeverityMedium, nil)
		return
	}
	if currentPrice == nil || *currentPrice >= *targetPrice {
		return
	}

	domain, err := domains.Registered(url)
	if err != nil {
		domain = url
	}

	message := fmt.Sprintf("%s: %s has lower price (%.2f) than %s (%.2f)", product, domain, *currentPrice, targetSite, *targetPrice)
	if err := notifier.SendAlert(ctx, message); err != nil {
		s.logger.LogError(ctx, logger.OpNotify, product, "Failed to send price alert", err, models.LogSeverityMedium, nil)
	}
}

// Close releases the pool and the read caches
func (s *PostgresStore) Close() {
	s.prices.Close()
	s.competitors.Close()
	if s.pool != nil {
		s.pool.Close()
	}
}

func priceKey(productName, url string) string {
	return fmt.Sprintf("price:%s:%s", productName, url)
}

func targetPriceKey(productName string) string {
	return fmt.Sprintf("target_price:%s", productName)
}

func competitorKey(productName string) string {
	return fmt.Sprintf("competitor_urls:%s", productName)
}

// cachedFloat converts a cached price back to a number; snapshot
// entries come back as raw JSON
func cachedFloat(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case json.RawMessage:
		var price float64
		if err := json.Unmarshal(v, &price); err != nil {
			return nil
		}
		return &price
	default:
		return nil
	}
}

// cachedStrings converts a cached URL list back to a slice
func cachedStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case json.RawMessage:
		var urls []string
		if err := json.Unmarshal(v, &urls); err != nil {
			return nil
		}
		return urls
	default:
		return nil
	}
}

// poolQuerier adapts a pgx pool to the Querier interface
type poolQuerier struct {
	pool *pgxpool.Pool
}

func (q poolQuerier) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := q.pool.Exec(ctx, sql, args...)
	return err
}

func (q poolQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return q.pool.QueryRow(ctx, sql, args...)
}

func (q poolQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
