package cache

import (
	"context"
	"time"
)

// Service defines the interface for the expiring cache
// External packages should use this interface, not the concrete implementations
type Service interface {
	// Get returns the cached value for key, or false when the key is
	// absent or expired.
	Get(key string) (interface{}, bool)
	// Set stores value under key. A nil value is the tombstone: the key
	// is removed immediately without waiting for its TTL.
	Set(key string, value interface{})
	// Clear removes every entry.
	Clear()
	// Stats returns a point-in-time snapshot of the cache state.
	Stats() Stats
	// Close stops the background sweep and waits for pending
	// persistence writes.
	Close()
}

// Stats is a derived, read-only view of a cache; it is computed on
// demand and never stored
type Stats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	TTL         time.Duration `json:"ttl"`
	Utilization float64       `json:"utilization"`
	Persistent  bool          `json:"persistent"`
}

// Store persists cache snapshots keyed by cache name. Load returns
// (nil, nil) when no snapshot exists for the name.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}
