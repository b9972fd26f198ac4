package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of cache.Store
type MockStore struct {
	mock.Mock
}

// Load mocks the Load method of cache.Store
func (m *MockStore) Load(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

// Save mocks the Save method of cache.Store
func (m *MockStore) Save(ctx context.Context, name string, data []byte) error {
	args := m.Called(ctx, name, data)
	return args.Error(0)
}
