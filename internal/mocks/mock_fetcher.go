package mocks

import (
	"context"

	"pricewatch/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of fetcher.Service
type MockFetcher struct {
	mock.Mock
}

// Fetch mocks the Fetch method of fetcher.Service
func (m *MockFetcher) Fetch(ctx context.Context, url, productName string) models.FetchResult {
	args := m.Called(ctx, url, productName)
	return args.Get(0).(models.FetchResult)
}
