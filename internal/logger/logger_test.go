package logger

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pricewatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l, err := newFileLogger(dir)
	require.NoError(t, err)

	ctx := WithLogEvent(context.Background(), NewRunLogEvent())
	l.LogInfo(ctx, OpRunStart, "starting", map[string]interface{}{"products": 3})
	l.LogError(ctx, OpFetchPrice, "example.com", "fetch failed", errors.New("boom"), models.LogSeverityMedium, nil)
	require.NoError(t, l.Close())

	file, err := os.Open(filepath.Join(dir, "pricewatch.log"))
	require.NoError(t, err)
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"operation":"run_start"`)
	assert.Contains(t, lines[0], `"process_type":"run"`)
	assert.Contains(t, lines[1], `"severity":"medium"`)
	assert.Contains(t, lines[1], `"error":"boom"`)
	assert.Contains(t, lines[1], `"target_name":"example.com"`)
}

func TestGetLogEvent_DefaultsToInternal(t *testing.T) {
	event := GetLogEvent(context.Background())

	assert.Equal(t, models.ProcessTypeInternal, event.ProcessType)
	assert.NotEmpty(t, event.ProcessID)
}

func TestWithLogEvent_RoundTrip(t *testing.T) {
	event := NewRunLogEvent()
	ctx := WithLogEvent(context.Background(), event)

	assert.Same(t, event, GetLogEvent(ctx))
}
