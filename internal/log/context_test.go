// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{name: "nil context", ctx: nil, requestID: "test-id-123", want: "test-id-123"},
		{name: "background context", ctx: context.Background(), requestID: "req-456", want: "req-456"},
		{name: "empty request ID", ctx: context.Background(), requestID: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestFromContextEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
	}{
		{name: "nil context", ctx: nil},
		{name: "context without values", ctx: context.Background()},
		{name: "context with wrong type", ctx: context.WithValue(context.Background(), sessionIDKey, 123)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, SessionIDFromContext(tt.ctx))
			assert.Empty(t, ConnIDFromContext(tt.ctx))
		})
	}
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	ctx := ContextWithSessionID(context.Background(), "lecture-42")
	ctx = ContextWithConnID(ctx, "conn-1")
	logger := WithComponentFromContext(ctx, "relay")
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "lecture-42", entry[FieldSessionID])
	assert.Equal(t, "conn-1", entry[FieldConnID])
	assert.Equal(t, "relay", entry[FieldComponent])
	assert.Equal(t, "test", entry["service"])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	base := WithComponent("test")
	got := WithContext(context.Background(), base)
	assert.Equal(t, base.GetLevel(), got.GetLevel())
}
