package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"pricewatch/internal/logger"
	"pricewatch/internal/models"
)

const (
	maxSweepInterval = 60 * time.Second
	persistTimeout   = 5 * time.Second
)

// LRU implements Service with per-entry TTL, least-recently-used
// eviction at capacity, a self-terminating background sweep, and
// optional snapshot persistence keyed by a cache name.
type LRU struct {
	mu      sync.RWMutex
	maxSize int
	ttl     time.Duration
	name    string
	store   Store
	logger  logger.Service

	entries map[string]*entry

	sweepInterval time.Duration
	sweeping      bool
	closed        bool
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// entry is a single cached value. accessedAt is updated on every hit
// while only the read lock is held, so it is stored atomically.
type entry struct {
	value      interface{}
	expiresAt  time.Time
	accessedAt atomic.Int64
}

// persistedEntry is the on-disk form of an entry. Values round-trip
// through JSON; loaded values surface as json.RawMessage and are
// converted by the typed wrappers on top of this cache.
type persistedEntry struct {
	Value      json.RawMessage `json:"value"`
	ExpiresAt  time.Time       `json:"expires_at"`
	AccessedAt time.Time       `json:"accessed_at"`
}

// New creates an expiring LRU cache. A non-empty name together with a
// store enables persistence: a previous snapshot is loaded immediately
// (dropping entries already expired) and every mutation writes the
// snapshot back asynchronously.
func New(maxSize int, ttl time.Duration, name string, store Store, log logger.Service) *LRU {
	sweep := ttl / 2
	if sweep > maxSweepInterval {
		sweep = maxSweepInterval
	}

	c := &LRU{
		maxSize:       maxSize,
		ttl:           ttl,
		name:          name,
		store:         store,
		logger:        log,
		entries:       make(map[string]*entry),
		sweepInterval: sweep,
		done:          make(chan struct{}),
	}

	if c.persistent() {
		c.load()
	}

	return c
}

func (c *LRU) persistent() bool {
	return c.name != "" && c.store != nil
}

// Get returns the value for key, treating expired entries as absent and
// removing them with a double-check under the write lock
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}

	now := time.Now()
	if now.After(e.expiresAt) {
		c.mu.RUnlock()

		c.mu.Lock()
		// Double-check: a concurrent sweep may have removed the entry,
		// or a concurrent Set may have replaced it with a live one.
		if cur, exists := c.entries[key]; exists && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	e.accessedAt.Store(now.UnixNano())
	value := e.value
	c.mu.RUnlock()
	return value, true
}

// Set stores value under key. A nil value removes the key immediately.
// Inserting a new key at capacity evicts the least-recently-accessed
// entry first.
func (c *LRU) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == nil {
		if _, exists := c.entries[key]; exists {
			delete(c.entries, key)
			c.persistLocked()
		}
		return
	}

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	now := time.Now()
	e := &entry{value: value, expiresAt: now.Add(c.ttl)}
	e.accessedAt.Store(now.UnixNano())
	c.entries[key] = e

	c.ensureSweepLocked()
	c.persistLocked()
}

// Clear removes all cache entries
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.persistLocked()
}

// Stats returns a point-in-time snapshot of the cache state
func (c *LRU) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	utilization := 0.0
	if c.maxSize > 0 {
		utilization = float64(len(c.entries)) / float64(c.maxSize)
	}

	return Stats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		TTL:         c.ttl,
		Utilization: utilization,
		Persistent:  c.persistent(),
	}
}

// Close stops the background sweep and waits for it and any pending
// persistence writes to finish
func (c *LRU) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// evictLocked removes the entry with the oldest access time.
// Caller must hold the write lock.
func (c *LRU) evictLocked() {
	var oldestKey string
	var oldestAccess int64
	first := true
	for key, e := range c.entries {
		accessed := e.accessedAt.Load()
		if first || accessed < oldestAccess {
			oldestKey = key
			oldestAccess = accessed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// ensureSweepLocked starts the sweep goroutine if it is not running.
// Caller must hold the write lock.
func (c *LRU) ensureSweepLocked() {
	if c.sweeping || c.closed {
		return
	}
	c.sweeping = true
	c.wg.Add(1)
	go c.sweepLoop()
}

// sweepLoop periodically removes expired entries and terminates once
// the cache is empty; Set restarts it on the next insert
func (c *LRU) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.sweepOnce() {
				return
			}
		}
	}
}

// sweepOnce removes all expired entries in one pass; it returns false
// when the cache is empty and the sweep should terminate
func (c *LRU) sweepOnce() bool {
	c.mu.Lock()

	if len(c.entries) == 0 {
		c.sweeping = false
		c.mu.Unlock()
		return false
	}

	now := time.Now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		c.persistLocked()
	}
	empty := len(c.entries) == 0
	if empty {
		c.sweeping = false
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.LogInfo(context.Background(), logger.OpCacheSweep, "Removed expired cache entries", map[string]interface{}{
			"cache":   c.name,
			"removed": removed,
		})
	}
	return !empty
}

// load restores a previously persisted snapshot, dropping entries that
// expired while the process was down. Any load failure starts the
// cache empty; persistence problems are never surfaced to callers.
func (c *LRU) load() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	data, err := c.store.Load(ctx, c.name)
	if err != nil {
		c.logger.LogError(ctx, logger.OpCachePersist, c.name, "Failed to load cache snapshot", err, models.LogSeverityLow, nil)
		return
	}
	if data == nil {
		return
	}

	var snapshot map[string]persistedEntry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.LogError(ctx, logger.OpCachePersist, c.name, "Corrupt cache snapshot, starting empty", err, models.LogSeverityLow, nil)
		return
	}

	now := time.Now()
	loaded := 0
	for key, pe := range snapshot {
		if now.After(pe.ExpiresAt) {
			continue
		}
		e := &entry{value: json.RawMessage(pe.Value), expiresAt: pe.ExpiresAt}
		e.accessedAt.Store(pe.AccessedAt.UnixNano())
		c.entries[key] = e
		loaded++
	}

	c.logger.LogInfo(ctx, logger.OpCachePersist, "Loaded cache snapshot", map[string]interface{}{
		"cache":   c.name,
		"entries": loaded,
		"dropped": len(snapshot) - loaded,
	})
}

// persistLocked snapshots the entry map and writes it out in the
// background; the caller's critical path never waits on the store.
// Caller must hold the write lock.
func (c *LRU) persistLocked() {
	if !c.persistent() {
		return
	}

	snapshot := make(map[string]persistedEntry, len(c.entries))
	for key, e := range c.entries {
		raw, err := json.Marshal(e.value)
		if err != nil {
			c.logger.LogError(context.Background(), logger.OpCachePersist, c.name, "Skipping unserializable cache entry", err, models.LogSeverityLow, map[string]interface{}{"key": key})
			continue
		}
		snapshot[key] = persistedEntry{
			Value:      raw,
			ExpiresAt:  e.expiresAt,
			AccessedAt: time.Unix(0, e.accessedAt.Load()),
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		data, err := json.Marshal(snapshot)
		if err != nil {
			c.logger.LogError(context.Background(), logger.OpCachePersist, c.name, "Failed to encode cache snapshot", err, models.LogSeverityLow, nil)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := c.store.Save(ctx, c.name, data); err != nil {
			c.logger.LogError(ctx, logger.OpCachePersist, c.name, "Failed to save cache snapshot", err, models.LogSeverityLow, nil)
		}
	}()
}
