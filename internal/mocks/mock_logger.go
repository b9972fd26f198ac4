package mocks

import (
	"context"

	"pricewatch/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a mock implementation of logger.Service
type MockLogger struct {
	mock.Mock
}

// LogInfo mocks the LogInfo method of logger.Service
func (m *MockLogger) LogInfo(ctx context.Context, operation, message string, metadata map[string]interface{}) {
	m.Called(ctx, operation, message, metadata)
}

// LogSuccess mocks the LogSuccess method of logger.Service
func (m *MockLogger) LogSuccess(ctx context.Context, operation, targetName, message string, metadata map[string]interface{}) {
	m.Called(ctx, operation, targetName, message, metadata)
}

// LogWarning mocks the LogWarning method of logger.Service
func (m *MockLogger) LogWarning(ctx context.Context, operation, targetName, message string, metadata map[string]interface{}) {
	m.Called(ctx, operation, targetName, message, metadata)
}

// LogError mocks the LogError method of logger.Service
func (m *MockLogger) LogError(ctx context.Context, operation, targetName, message string, err error, severity models.LogSeverity, metadata map[string]interface{}) {
	m.Called(ctx, operation, targetName, message, err, severity, metadata)
}

// Close mocks the Close method of logger.Service
func (m *MockLogger) Close() error {
	args := m.Called()
	return args.Error(0)
}

// RelaxedLogger returns a MockLogger that tolerates any logging call,
// for tests that are not asserting on log output
func RelaxedLogger() *MockLogger {
	l := new(MockLogger)
	l.On("LogInfo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("LogSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("LogWarning", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("LogError", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("Close").Return(nil).Maybe()
	return l
}
