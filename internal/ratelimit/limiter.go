package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pricewatch/internal/logger"
	"pricewatch/internal/models"
)

const (
	defaultRate   = 5.0
	defaultPeriod = 1 * time.Second

	// Hard floor between consecutive requests to one domain, applied
	// even when the bucket would allow a faster pace.
	minInterval  = 100 * time.Millisecond
	pollInterval = 100 * time.Millisecond

	// No adjustment happens before this many observations accumulate.
	minObservations = 10
	// Once this many observations accumulate, both counters are halved
	// to bound growth while preserving the recent trend.
	halveThreshold = 50

	minRate           = 1.0
	maxRate           = 10.0
	reduceFactor      = 0.75
	increaseFactor    = 1.1
	reduceThreshold   = 0.7
	increaseThreshold = 0.95
)

// tokenBucket grants permits at a fractional rate per period. It is not
// safe for concurrent use; callers hold the owning domain's lock.
type tokenBucket struct {
	rate   float64
	period time.Duration
	tokens float64
	last   time.Time
}

// newTokenBucket creates a full bucket with the given rate and period
func newTokenBucket(rate float64, period time.Duration) *tokenBucket {
	return &tokenBucket{
		rate:   rate,
		period: period,
		tokens: rate,
		last:   time.Now(),
	}
}

// allow checks if a permit is available and consumes it if so
func (b *tokenBucket) allow(now time.Time) bool {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// refill adds permits based on time elapsed since the last refill
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.rate, b.tokens+elapsed*(b.rate/b.period.Seconds()))
	b.last = now
}

// domainState is the per-domain mutable state. Each domain has its own
// lock so slow domains never block fast ones.
type domainState struct {
	mu          sync.Mutex
	bucket      *tokenBucket
	lastRequest time.Time
	successes   int
	failures    int
}

// DomainRateLimiter implements Service: a lazily populated set of
// per-domain token buckets whose rates adapt to observed request
// outcomes, with the learned rates persisted across runs.
type DomainRateLimiter struct {
	mu         sync.Mutex
	configPath string
	logger     logger.Service
	states     map[string]*domainState
	configs    map[string][2]float64 // domain -> [rate, period seconds]
	dirty      bool
}

// NewDomainRateLimiter creates a limiter, loading any previously
// persisted per-domain configuration from configPath
func NewDomainRateLimiter(configPath string, log logger.Service) *DomainRateLimiter {
	l := &DomainRateLimiter{
		configPath: configPath,
		logger:     log,
		states:     make(map[string]*domainState),
		configs:    make(map[string][2]float64),
	}
	l.loadConfigs()
	return l
}

// loadConfigs reads persisted rate configurations; any failure is
// logged and the limiter starts from defaults
func (l *DomainRateLimiter) loadConfigs() {
	ctx := context.Background()

	data, err := os.ReadFile(l.configPath)
	if os.IsNotExist(err) {
		l.logger.LogInfo(ctx, logger.OpRateConfig, "No rate limit configuration file found, using defaults", nil)
		return
	}
	if err != nil {
		l.logger.LogError(ctx, logger.OpRateConfig, "", "Failed to read rate limit configurations", err, models.LogSeverityLow, nil)
		return
	}

	var configs map[string][2]float64
	if err := json.Unmarshal(data, &configs); err != nil {
		l.logger.LogError(ctx, logger.OpRateConfig, "", "Failed to parse rate limit configurations", err, models.LogSeverityLow, nil)
		return
	}

	l.configs = configs
	l.logger.LogInfo(ctx, logger.OpRateConfig, fmt.Sprintf("Loaded rate limits for %d domains", len(configs)), nil)
}

// SaveConfigs writes the current rate configurations back, but only
// when an adjustment changed them since the last load or save
func (l *DomainRateLimiter) SaveConfigs() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx := context.Background()

	if !l.dirty {
		l.logger.LogInfo(ctx, logger.OpRateConfig, "Rate limit config not modified", nil)
		return nil
	}

	data, err := json.MarshalIndent(l.configs, "", "  ")
	if err != nil {
		l.logger.LogError(ctx, logger.OpRateConfig, "", "Failed to encode rate limit configurations", err, models.LogSeverityLow, nil)
		return err
	}

	if dir := filepath.Dir(l.configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			l.logger.LogError(ctx, logger.OpRateConfig, "", "Failed to create rate limit directory", err, models.LogSeverityLow, nil)
			return err
		}
	}

	if err := os.WriteFile(l.configPath, data, 0o644); err != nil {
		l.logger.LogError(ctx, logger.OpRateConfig, "", "Failed to save rate limit configurations", err, models.LogSeverityLow, nil)
		return err
	}

	l.dirty = false
	l.logger.LogInfo(ctx, logger.OpRateConfig, fmt.Sprintf("Saved rate limits for %d domains", len(l.configs)), nil)
	return nil
}

// state gets or creates the state for a domain, applying a persisted
// configuration when one exists
func (l *DomainRateLimiter) state(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[domain]
	if !ok {
		rate := defaultRate
		period := defaultPeriod
		if cfg, exists := l.configs[domain]; exists {
			rate = cfg[0]
			period = time.Duration(cfg[1] * float64(time.Second))
		}
		st = &domainState{bucket: newTokenBucket(rate, period)}
		l.states[domain] = st
	}
	return st
}

// Acquire blocks until a request to domain is permitted, honoring both
// the domain's token bucket and the minimum spacing floor
func (l *DomainRateLimiter) Acquire(ctx context.Context, domain string) error {
	st := l.state(domain)

	for {
		st.mu.Lock()
		now := time.Now()

		var wait time.Duration
		if !st.lastRequest.IsZero() {
			if since := now.Sub(st.lastRequest); since < minInterval {
				wait = minInterval - since
			}
		}
		if wait == 0 {
			if st.bucket.allow(now) {
				st.lastRequest = now
				st.mu.Unlock()
				return nil
			}
			wait = pollInterval
		}
		st.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// UpdateRate adjusts a domain's rate based on the outcome of the
// request that followed its most recent Acquire
func (l *DomainRateLimiter) UpdateRate(domain string, success bool) {
	l.mu.Lock()
	st, ok := l.states[domain]
	l.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()

	if success {
		st.successes++
	} else {
		st.failures++
	}

	total := st.successes + st.failures
	if total < minObservations {
		st.mu.Unlock()
		return
	}

	successRate := float64(st.successes) / float64(total)
	currentRate := st.bucket.rate
	period := st.bucket.period

	newRate := 0.0
	if !success || successRate < reduceThreshold {
		newRate = math.Max(minRate, currentRate*reduceFactor)
	} else if successRate > increaseThreshold && currentRate < maxRate {
		newRate = math.Min(maxRate, currentRate*increaseFactor)
	}

	adjusted := false
	if newRate != 0 && newRate != currentRate {
		newRate = math.Round(newRate*10) / 10
		// A fresh bucket replaces the old one; Acquire calls already
		// waiting on the old bucket are unaffected.
		st.bucket = newTokenBucket(newRate, period)
		adjusted = true
	}

	if total >= halveThreshold {
		st.successes /= 2
		st.failures /= 2
	}
	st.mu.Unlock()

	if !adjusted {
		return
	}

	l.mu.Lock()
	l.configs[domain] = [2]float64{newRate, period.Seconds()}
	l.dirty = true
	l.mu.Unlock()

	message := fmt.Sprintf("Adjusted rate for %s to %g req/%gs", domain, newRate, period.Seconds())
	if newRate < currentRate {
		l.logger.LogWarning(context.Background(), logger.OpRateAdjust, domain, message, map[string]interface{}{
			"rate":         newRate,
			"success_rate": successRate,
		})
	} else {
		l.logger.LogInfo(context.Background(), logger.OpRateAdjust, message, map[string]interface{}{
			"domain":       domain,
			"rate":         newRate,
			"success_rate": successRate,
		})
	}
}
