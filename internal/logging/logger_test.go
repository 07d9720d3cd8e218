package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext_AttachesTraceIDAndMapSlug(t *testing.T) {
	logger := New("notifierd", "debug", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithMapSlug(ctx, "alpha")
	logger.WithContext(ctx).Info("hello")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "trace-123", decoded["trace_id"])
	assert.Equal(t, "alpha", decoded["map_slug"])
	assert.Equal(t, "notifierd", decoded["service"])
}

func TestGetTraceID_ReturnsEmptyWhenAbsent(t *testing.T) {
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestNamed_SharesUnderlyingLoggerButChangesServiceField(t *testing.T) {
	logger := New("parent", "debug", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	child := logger.Named("child")
	child.WithFields(nil).Info("hi")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "child", decoded["service"])
}

func TestFormatDuration_FormatsMilliseconds(t *testing.T) {
	assert.Equal(t, "1.50ms", FormatDuration(1500*time.Microsecond))
}

func TestNewTraceID_ProducesNonEmptyUniqueValues(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
