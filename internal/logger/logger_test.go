package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ErrorEntry(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("order-service", &buf)

	log.Error("db_query_failed", "Failed to query order", "req-1", errors.New("boom"), map[string]interface{}{
		"order_id": "o-1",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "Failed to query order", entry["msg"])
	assert.Equal(t, "order-service", entry["service"])
	assert.Equal(t, "db_query_failed", entry["action"])
	assert.Equal(t, "req-1", entry["request_id"])

	details, ok := entry["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "o-1", details["order_id"])

	errGroup, ok := entry["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "boom", errGroup["msg"])
}

func TestLogger_InfoWithoutFields(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("lock-reaper", &buf).Info("service_started", "Starting", "", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.NotContains(t, entry, "details")
	assert.NotContains(t, entry, "error")
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}
