// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive is the number of sessions currently present in the room registry.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liverelay_sessions_active",
		Help: "Number of live sessions currently registered",
	})

	// SessionTransitions counts lifecycle state changes by source and target state.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_session_transitions_total",
		Help: "Session lifecycle transitions by from/to state",
	}, []string{"from", "to"})

	// SessionTeardowns counts teardowns by reason code.
	SessionTeardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_session_teardowns_total",
		Help: "Session teardowns by reason",
	}, []string{"reason"})

	// ActivationDuration tracks the time from stream creation until the broadcast is live.
	ActivationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liverelay_activation_duration_seconds",
		Help:    "Time from broadcast creation to live",
		Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
	})

	// RemoteCalls counts calls to the broadcast platform by operation and result.
	RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_remote_calls_total",
		Help: "Broadcast platform API calls by operation and result",
	}, []string{"operation", "result"})

	// RemoteCallDuration tracks latency of broadcast platform calls.
	RemoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "liverelay_remote_call_duration_seconds",
		Help:    "Broadcast platform API call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// PollAttempts counts status poll attempts by what was being waited for and outcome.
	PollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_poll_attempts_total",
		Help: "Remote status poll attempts by target and outcome",
	}, []string{"target", "outcome"})

	// PipelineStarts counts transcode pipeline start attempts.
	PipelineStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_pipeline_starts_total",
		Help: "Transcode pipeline start attempts by result",
	}, []string{"result"})

	// PipelineExits counts transcode pipeline exits by kind (ended, error, killed).
	PipelineExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_pipeline_exits_total",
		Help: "Transcode pipeline exits by kind",
	}, []string{"kind"})

	// IngestBytes counts media bytes accepted into ingest buffers.
	IngestBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liverelay_ingest_bytes_total",
		Help: "Media bytes accepted into ingest buffers",
	})

	// IngestBackpressure counts writes that found the buffer full and had to wait.
	IngestBackpressure = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liverelay_ingest_backpressure_total",
		Help: "Ingest writes that blocked on a full buffer",
	})

	// IngestWriteErrors counts rejected ingest writes by reason (closed, timeout).
	IngestWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_ingest_write_errors_total",
		Help: "Rejected ingest writes by reason",
	}, []string{"reason"})

	// RealtimeConnections is the number of open realtime connections.
	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liverelay_realtime_connections",
		Help: "Open realtime websocket connections",
	})

	// RealtimeMessages counts inbound realtime messages by event name.
	RealtimeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverelay_realtime_messages_total",
		Help: "Inbound realtime messages by event",
	}, []string{"event"})
)

// RecordRemoteCall records the outcome and latency of one platform call.
func RecordRemoteCall(operation, result string, d time.Duration) {
	RemoteCalls.WithLabelValues(operation, result).Inc()
	RemoteCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordTransition records a lifecycle state change.
func RecordTransition(from, to string) {
	SessionTransitions.WithLabelValues(from, to).Inc()
}
