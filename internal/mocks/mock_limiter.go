package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRateLimiter is a mock implementation of ratelimit.Service
type MockRateLimiter struct {
	mock.Mock
}

// Acquire mocks the Acquire method of ratelimit.Service
func (m *MockRateLimiter) Acquire(ctx context.Context, domain string) error {
	args := m.Called(ctx, domain)
	return args.Error(0)
}

// UpdateRate mocks the UpdateRate method of ratelimit.Service
func (m *MockRateLimiter) UpdateRate(domain string, success bool) {
	m.Called(domain, success)
}

// SaveConfigs mocks the SaveConfigs method of ratelimit.Service
func (m *MockRateLimiter) SaveConfigs() error {
	args := m.Called()
	return args.Error(0)
}

// RelaxedRateLimiter returns a MockRateLimiter that grants every
// acquire immediately, for tests exercising fetch behavior rather than
// throttling
func RelaxedRateLimiter() *MockRateLimiter {
	l := new(MockRateLimiter)
	l.On("Acquire", mock.Anything, mock.Anything).Return(nil).Maybe()
	l.On("UpdateRate", mock.Anything, mock.Anything).Maybe()
	l.On("SaveConfigs").Return(nil).Maybe()
	return l
}
