// Package notify pushes price alerts to an ntfy-style endpoint: the
// message is the POST body, the alert title and tags travel as headers.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"pricewatch/internal/logger"
	"pricewatch/internal/models"
)

// maxPerRun caps how many alerts one run may send; a run that trips
// over it is misconfigured rather than genuinely that newsworthy
const maxPerRun = 50

// Manager implements the Service interface
type Manager struct {
	mu        sync.Mutex
	url       string
	client    *http.Client
	logger    logger.Service
	sentCount int
}

// NewManager creates a notification manager for the given endpoint URL
func NewManager(url string, client *http.Client, log logger.Service) Service {
	return &Manager{
		url:    url,
		client: client,
		logger: log,
	}
}

// SendAlert posts one alert message to the notification endpoint
func (m *Manager) SendAlert(ctx context.Context, message string) error {
	m.mu.Lock()
	if m.sentCount >= maxPerRun {
		m.mu.Unlock()
		m.logger.LogWarning(ctx, logger.OpNotify, "", "Notification cap reached, dropping alert", map[string]interface{}{
			"message": message,
		})
		return nil
	}
	m.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Title", "Price Alert")
	req.Header.Set("Tags", "warning")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &models.HTTPError{Status: resp.StatusCode}
	}

	m.mu.Lock()
	m.sentCount++
	m.mu.Unlock()

	m.logger.LogInfo(ctx, logger.OpNotify, fmt.Sprintf("Sent notification: %s", message), nil)
	return nil
}
