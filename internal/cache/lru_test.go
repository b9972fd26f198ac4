package cache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pricewatch/internal/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errSave = errors.New("disk full")

func newTestCache(maxSize int, ttl time.Duration) *LRU {
	return New(maxSize, ttl, "", nil, mocks.RelaxedLogger())
}

func TestLRU_SetAndGet(t *testing.T) {
	c := newTestCache(10, time.Hour)
	defer c.Close()

	c.Set("key", "value")

	value, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", value)
}

func TestLRU_Get_Absent(t *testing.T) {
	c := newTestCache(10, time.Hour)
	defer c.Close()

	value, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestLRU_Get_Expired(t *testing.T) {
	c := newTestCache(10, 100*time.Millisecond)
	defer c.Close()

	c.Set("k", "v")

	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(150 * time.Millisecond)

	value, ok := c.Get("k")
	assert.False(t, ok)
	assert.Nil(t, value)

	// The lazy expiry check removed the entry, not just hid it.
	assert.Equal(t, 0, c.Stats().Size)
}

func TestLRU_Eviction_LeastRecentlyAccessed(t *testing.T) {
	c := newTestCache(2, time.Hour)
	defer c.Close()

	c.Set("k1", "v1")
	time.Sleep(5 * time.Millisecond)
	c.Set("k2", "v2")
	time.Sleep(5 * time.Millisecond)

	// Touch k1 so k2 becomes the least recently accessed.
	_, ok := c.Get("k1")
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)

	c.Set("k3", "v3")

	_, ok = c.Get("k2")
	assert.False(t, ok, "k2 should have been evicted")
	_, ok = c.Get("k1")
	assert.True(t, ok)
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestLRU_Eviction_OnlyOnNewKey(t *testing.T) {
	c := newTestCache(2, time.Hour)
	defer c.Close()

	c.Set("k1", "v1")
	c.Set("k2", "v2")

	// Overwriting an existing key at capacity must not evict anything.
	c.Set("k1", "v1b")

	assert.Equal(t, 2, c.Stats().Size)
	value, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1b", value)
	_, ok = c.Get("k2")
	assert.True(t, ok)
}

func TestLRU_Tombstone_Invalidates(t *testing.T) {
	c := newTestCache(10, time.Hour)
	defer c.Close()

	c.Set("k1", "v1")
	c.Set("k2", "v2")

	c.Set("k1", nil)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k2")
	assert.True(t, ok)
}

func TestLRU_Clear(t *testing.T) {
	c := newTestCache(10, time.Hour)
	defer c.Close()

	c.Set("k1", "v1")
	c.Set("k2", "v2")
	c.Clear()

	assert.Equal(t, 0, c.Stats().Size)
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestLRU_Stats(t *testing.T) {
	c := newTestCache(4, time.Hour)
	defer c.Close()

	c.Set("k1", "v1")
	c.Set("k2", "v2")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 4, stats.MaxSize)
	assert.Equal(t, time.Hour, stats.TTL)
	assert.InDelta(t, 0.5, stats.Utilization, 0.001)
	assert.False(t, stats.Persistent)
}

func TestLRU_SweepRemovesExpired(t *testing.T) {
	// ttl/2 = 50ms sweep interval.
	c := newTestCache(10, 100*time.Millisecond)
	defer c.Close()

	c.Set("k", "v")
	require.Equal(t, 1, c.Stats().Size)

	// Without any Get touching the entry, the background sweep alone
	// should remove it once expired.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestLRU_SweepRestartsAfterIdle(t *testing.T) {
	c := newTestCache(10, 100*time.Millisecond)
	defer c.Close()

	c.Set("k1", "v1")
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 0, c.Stats().Size)

	// The sweep self-terminated on the empty cache; a new Set must
	// restart it.
	c.Set("k2", "v2")
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestLRU_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	c := New(10, time.Hour, "test_cache", store, mocks.RelaxedLogger())
	c.Set("k1", map[string]interface{}{"price": 9.99})
	c.Set("k2", "plain")
	c.Close()

	reloaded := New(10, time.Hour, "test_cache", store, mocks.RelaxedLogger())
	defer reloaded.Close()

	value, ok := reloaded.Get("k1")
	require.True(t, ok)
	raw, isRaw := value.(json.RawMessage)
	require.True(t, isRaw, "loaded values surface as raw JSON")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 9.99, decoded["price"])

	assert.True(t, reloaded.Stats().Persistent)
	assert.Equal(t, 2, reloaded.Stats().Size)
}

func TestLRU_LoadDropsExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	c := New(10, 50*time.Millisecond, "short_cache", store, mocks.RelaxedLogger())
	c.Set("k", "v")
	c.Close()

	time.Sleep(100 * time.Millisecond)

	reloaded := New(10, 50*time.Millisecond, "short_cache", store, mocks.RelaxedLogger())
	defer reloaded.Close()

	assert.Equal(t, 0, reloaded.Stats().Size)
}

func TestLRU_CorruptSnapshotStartsEmpty(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Load", mock.Anything, "broken").Return([]byte("{not json"), nil)
	store.On("Save", mock.Anything, "broken", mock.Anything).Return(nil).Maybe()

	c := New(10, time.Hour, "broken", store, mocks.RelaxedLogger())
	defer c.Close()

	assert.Equal(t, 0, c.Stats().Size)

	// The cache keeps operating in-memory.
	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestLRU_PersistFailureIsNonFatal(t *testing.T) {
	store := new(mocks.MockStore)
	store.On("Load", mock.Anything, "flaky").Return(nil, nil)
	store.On("Save", mock.Anything, "flaky", mock.Anything).Return(errSave)

	c := New(10, time.Hour, "flaky", store, mocks.RelaxedLogger())

	c.Set("k", "v")
	c.Close()

	value, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", value)
}
