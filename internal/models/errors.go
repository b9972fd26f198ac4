package models

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoSites indicates that the input file contains no usable site configurations
	ErrNoSites = errors.New("no site configurations available")

	// ErrRateLimited indicates that a remote endpoint answered with HTTP 429
	ErrRateLimited = errors.New("rate limited by remote host")

	// ErrCacheMiss indicates that a key is absent from the cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidURL indicates that a product URL could not be parsed
	ErrInvalidURL = errors.New("invalid product URL")
)

// HTTPError is a non-2xx response that survived all retry attempts.
// Snippet carries at most the first 200 bytes of the response body.
type HTTPError struct {
	Status  int
	Snippet string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Snippet)
}

func (e *HTTPError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// NetworkError is a transport-level failure (connect, TLS, timeout, read)
// that survived all retry attempts
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError indicates that a response was received but no usable price
// could be extracted from it
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return e.Reason
}

// SiteError represents an error specific to one site's configuration
type SiteError struct {
	Domain  string
	Message string
	Err     error
}

func (e *SiteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("site %s: %s: %v", e.Domain, e.Message, e.Err)
	}
	return fmt.Sprintf("site %s: %s", e.Domain, e.Message)
}

func (e *SiteError) Unwrap() error {
	return e.Err
}

// NewSiteError creates a new site-specific error
func NewSiteError(domain, message string, err error) *SiteError {
	return &SiteError{
		Domain:  domain,
		Message: message,
		Err:     err,
	}
}
