// Package domains extracts the registered (eTLD+1) domain from product
// URLs. The registered domain is the key used for source lookup and for
// per-domain rate limiting.
package domains

import (
	"fmt"
	"net/url"
	"strings"

	"pricewatch/internal/models"

	"golang.org/x/net/publicsuffix"
)

// Registered returns the registered domain for a raw URL or bare
// hostname. Hosts without a recognizable public suffix (IP addresses,
// loopback, single-label intranet names) fall back to the host itself,
// including any port, so they remain usable as lookup keys.
func Registered(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty URL", models.ErrInvalidURL)
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidURL, raw)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", models.ErrInvalidURL, raw)
	}

	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		if port := parsed.Port(); port != "" {
			return host + ":" + port, nil
		}
		return host, nil
	}

	return registered, nil
}
