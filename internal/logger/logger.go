package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pricewatch/internal/models"

	"github.com/google/uuid"
)

// FileLogger implements the Service interface writing structured JSON
// lines to a log file and a short human-readable line to stderr.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileLogger creates a new file-backed logger. The log directory is
// created if it does not exist.
func NewFileLogger(logDir string) (Service, error) {
	return newFileLogger(logDir)
}

// newFileLogger creates the concrete implementation
func newFileLogger(logDir string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(logDir, "pricewatch.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &FileLogger{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// LogInfo logs an informational message (no severity)
func (l *FileLogger) LogInfo(ctx context.Context, operation, message string, metadata map[string]interface{}) {
	l.logEntry(ctx, "", operation, "", message, nil, metadata)
}

// LogSuccess logs a successful operation (no severity)
func (l *FileLogger) LogSuccess(ctx context.Context, operation, targetName, message string, metadata map[string]interface{}) {
	l.logEntry(ctx, "", operation, targetName, message, nil, metadata)
}

// LogWarning logs a degraded but non-failing condition
func (l *FileLogger) LogWarning(ctx context.Context, operation, targetName, message string, metadata map[string]interface{}) {
	l.logEntry(ctx, models.LogSeverityLow, operation, targetName, message, nil, metadata)
}

// LogError logs an error with required severity
func (l *FileLogger) LogError(ctx context.Context, operation, targetName, message string, err error, severity models.LogSeverity, metadata map[string]interface{}) {
	l.logEntry(ctx, severity, operation, targetName, message, err, metadata)
}

// logEntry is the internal method that creates and stores log entries
func (l *FileLogger) logEntry(ctx context.Context, severity models.LogSeverity, operation, targetName, message string, err error, metadata map[string]interface{}) {
	logEvent := GetLogEvent(ctx)

	entry := &models.LogEntry{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		Severity:    severity,
		Message:     message,
		Operation:   operation,
		TargetName:  targetName,
		ProcessID:   logEvent.ProcessID,
		ProcessType: logEvent.ProcessType,
		Metadata:    metadata,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if encErr := l.encoder.Encode(entry); encErr != nil {
		fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", encErr)
	}

	if severity != "" || err != nil {
		fmt.Fprintf(os.Stderr, "[%s %s] %s: %s", entry.Timestamp.Format(time.RFC3339), severity, operation, message)
		if err != nil {
			fmt.Fprintf(os.Stderr, " (%v)", err)
		}
		fmt.Fprintln(os.Stderr)
	}
}

// Close closes the logger's underlying file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// LogOperations defines constants for common operations
const (
	OpRunStart      = "run_start"
	OpRunComplete   = "run_complete"
	OpBatchFetch    = "batch_fetch"
	OpFetchPrice    = "fetch_price"
	OpParsePrice    = "parse_price"
	OpCacheHit      = "cache_hit"
	OpCacheMiss     = "cache_miss"
	OpCachePersist  = "cache_persist"
	OpCacheSweep    = "cache_sweep"
	OpRateLimited   = "rate_limited"
	OpRateAdjust    = "rate_adjust"
	OpRateConfig    = "rate_config"
	OpResolveSource = "resolve_source"
	OpInputLoad     = "input_load"
	OpPriceUpdate   = "price_update"
	OpPriceCompare  = "price_compare"
	OpNotify        = "notify"
)
