// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRemoteCall(t *testing.T) {
	before := testutil.ToFloat64(RemoteCalls.WithLabelValues("create_stream", "ok"))
	RecordRemoteCall("create_stream", "ok", 150*time.Millisecond)
	after := testutil.ToFloat64(RemoteCalls.WithLabelValues("create_stream", "ok"))
	assert.Equal(t, before+1, after)
}

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	SetCircuitBreakerState("youtube", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("youtube", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("youtube", "closed")))

	SetCircuitBreakerState("youtube", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("youtube", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("youtube", "closed")))
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(SessionTransitions.WithLabelValues("testing", "live"))
	RecordTransition("testing", "live")
	assert.Equal(t, before+1, testutil.ToFloat64(SessionTransitions.WithLabelValues("testing", "live")))
}
