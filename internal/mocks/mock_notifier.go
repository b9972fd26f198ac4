package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notify.Service
type MockNotifier struct {
	mock.Mock
}

// SendAlert mocks the SendAlert method of notify.Service
func (m *MockNotifier) SendAlert(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}
