package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "data/input.json", cfg.InputPath)
	assert.Equal(t, "data/output.json", cfg.OutputPath)
	assert.Equal(t, "file", cfg.CacheBackend)
	assert.Equal(t, "data/rate_limits.json", cfg.RateLimitsPath)
	assert.Equal(t, 10, cfg.MaxConcurrentFetches)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INPUT_PATH", "/tmp/sites.json")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("MAX_CONCURRENT_FETCHES", "4")
	t.Setenv("FETCH_TIMEOUT_SECONDS", "5")

	cfg := Load()

	assert.Equal(t, "/tmp/sites.json", cfg.InputPath)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, 4, cfg.MaxConcurrentFetches)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_FETCHES", "not-a-number")

	cfg := Load()

	assert.Equal(t, 10, cfg.MaxConcurrentFetches)
}
