package ratelimit

import "context"

// Service defines the interface for per-domain adaptive rate limiting
// External packages should use this interface, not the concrete implementations
type Service interface {
	// Acquire blocks until one request to domain is permitted.
	Acquire(ctx context.Context, domain string) error
	// UpdateRate feeds back the outcome of the request that followed
	// the most recent Acquire for domain.
	UpdateRate(domain string, success bool)
	// SaveConfigs writes the learned per-domain rates back, only when
	// they changed since load.
	SaveConfigs() error
}
