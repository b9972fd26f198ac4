package notify

import "context"

// Service defines the interface for sending price alerts
// External packages should use this interface, not the concrete implementations
type Service interface {
	// SendAlert delivers one alert message. Alerts beyond the per-run
	// cap are dropped with a warning.
	SendAlert(ctx context.Context, message string) error
}
