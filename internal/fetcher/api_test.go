package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pricewatch/internal/domains"
	"pricewatch/internal/mocks"
	"pricewatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func apiSite() *models.Site {
	return &models.Site{
		RootDomain: "shop.example.com",
		Category:   models.SourceAPI,
		Credentials: &models.Credentials{
			ConsumerKey:    "key",
			ConsumerSecret: "secret",
		},
	}
}

func newAPIFetcherForTest(site *models.Site) *apiFetcher {
	f := NewAPIFetcher(site, http.DefaultClient, mocks.RelaxedRateLimiter(), mocks.RelaxedLogger()).(*apiFetcher)
	f.backoffUnit = time.Millisecond
	return f
}

func TestAPIFetcher_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "request should carry basic auth")
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price": "49.99", "regular_price": "59.99"}`))
	}))
	defer server.Close()

	f := newAPIFetcherForTest(apiSite())
	result := f.Fetch(context.Background(), server.URL+"/products/1", "Widget")

	require.True(t, result.Success(), "unexpected error: %s", result.Error)
	assert.Equal(t, "Widget", result.ProductName)
	assert.Equal(t, models.SourceAPI, result.Source)
	assert.Equal(t, 49.99, result.Data.Price)
	require.NotNil(t, result.Data.RegularPrice)
	assert.Equal(t, 59.99, *result.Data.RegularPrice)
	assert.Nil(t, result.Data.SalePrice)
}

func TestAPIFetcher_NumericFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 12.5, "sale_price": 10}`))
	}))
	defer server.Close()

	f := newAPIFetcherForTest(apiSite())
	result := f.Fetch(context.Background(), server.URL, "Widget")

	require.True(t, result.Success(), "unexpected error: %s", result.Error)
	assert.Equal(t, 12.5, result.Data.Price)
	require.NotNil(t, result.Data.SalePrice)
	assert.Equal(t, 10.0, *result.Data.SalePrice)
}

func TestAPIFetcher_RejectsMalformedPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": "$49.99"}`))
	}))
	defer server.Close()

	f := newAPIFetcherForTest(apiSite())
	result := f.Fetch(context.Background(), server.URL, "Widget")

	assert.False(t, result.Success())
	assert.Equal(t, "No valid price found in API response", result.Error)
}

func TestAPIFetcher_MissingPriceField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"regular_price": "10"}`))
	}))
	defer server.Close()

	f := newAPIFetcherForTest(apiSite())
	result := f.Fetch(context.Background(), server.URL, "Widget")

	assert.False(t, result.Success())
	assert.Equal(t, "No valid price found in API response", result.Error)
}

func TestAPIFetcher_RetriesThenGivesUp(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newAPIFetcherForTest(apiSite())
	result := f.Fetch(context.Background(), server.URL, "Widget")

	assert.False(t, result.Success())
	assert.Contains(t, result.Error, "HTTP 500")
	assert.Contains(t, result.Error, "upstream exploded")
	assert.Equal(t, int32(maxAttempts), attempts.Load())
}

func TestAPIFetcher_RecoversWithinRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "not yet", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"price": "5.00"}`))
	}))
	defer server.Close()

	f := newAPIFetcherForTest(apiSite())
	result := f.Fetch(context.Background(), server.URL, "Widget")

	require.True(t, result.Success(), "unexpected error: %s", result.Error)
	assert.Equal(t, 5.0, result.Data.Price)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestAPIFetcher_ReportsOutcomesToLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	domain, err := domains.Registered(server.URL)
	require.NoError(t, err)

	limiter := new(mocks.MockRateLimiter)
	limiter.On("Acquire", mock.Anything, domain).Return(nil).Times(maxAttempts)
	limiter.On("UpdateRate", domain, false).Times(maxAttempts)

	f := NewAPIFetcher(apiSite(), http.DefaultClient, limiter, mocks.RelaxedLogger()).(*apiFetcher)
	f.backoffUnit = time.Millisecond
	f.Fetch(context.Background(), server.URL, "Widget")

	limiter.AssertExpectations(t)
}

func TestAPIFetcher_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := NewAPIFetcher(apiSite(), http.DefaultClient, mocks.RelaxedRateLimiter(), mocks.RelaxedLogger()).(*apiFetcher)
	// Production backoff unit: the first backoff of 1s exceeds the
	// context deadline, so the fetch must give up early.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := f.Fetch(ctx, server.URL, "Widget")

	assert.False(t, result.Success())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestValidatedPrice(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  *float64
	}{
		{"numeric string", "49.99", floatPtr(49.99)},
		{"integer string", "120", floatPtr(120)},
		{"json number", json.Number("12.5"), floatPtr(12.5)},
		{"currency prefix", "$49.99", nil},
		{"thousands separator", "1,299.00", nil},
		{"negative", "-5", nil},
		{"empty", "", nil},
		{"absent", nil, nil},
		{"wrong type", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validatedPrice(tt.value)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func floatPtr(v float64) *float64 { return &v }
