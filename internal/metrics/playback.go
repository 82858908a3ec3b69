// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics holds the Prometheus instrumentation for playback
// sessions, probing and casting.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionStartTotal tracks session creation attempts by backend and result.
	SessionStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackd_session_start_total",
		Help: "Total number of playback session start attempts by backend and result",
	}, []string{"backend", "result"})

	// SessionStartupLatency tracks the time from session creation to engine ready.
	SessionStartupLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playbackd_session_startup_latency_seconds",
		Help:    "Time from session creation to engine readiness",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	}, []string{"backend"})

	// SessionsActive tracks the number of live sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playbackd_sessions_active",
		Help: "Number of currently attached playback sessions",
	})

	// PlaybackErrorsTotal tracks unrecoverable engine errors per backend.
	PlaybackErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackd_playback_errors_total",
		Help: "Total number of unrecoverable engine errors by backend",
	}, []string{"backend"})

	// SessionRetriesTotal tracks user-initiated retries.
	SessionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playbackd_session_retries_total",
		Help: "Total number of user-initiated session retries",
	})

	// ProbeRequestsTotal tracks prober calls by cache tier outcome.
	ProbeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackd_probe_requests_total",
		Help: "Total number of format probe lookups by outcome (local, shared, remote, error)",
	}, []string{"outcome"})

	// ProbeDuration tracks remote probe latency.
	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playbackd_probe_duration_seconds",
		Help:    "Remote format probe latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// CastSessionsTotal tracks cast session starts by result.
	CastSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackd_cast_sessions_total",
		Help: "Total number of cast session start attempts by result",
	}, []string{"result"})

	// SubtitleInjectionsTotal tracks sideload outcomes by final state.
	SubtitleInjectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbackd_subtitle_injections_total",
		Help: "Total number of subtitle injection runs by final state",
	}, []string{"state"})

	// CircuitBreakerState exposes breaker states as one-hot gauges per
	// component.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playbackd_circuit_breaker_state",
		Help: "Circuit breaker state per component (1 for the active state)",
	}, []string{"component", "state"})
)

// SetCircuitBreakerState marks the active breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		CircuitBreakerState.WithLabelValues(component, s).Set(v)
	}
}

// IncSessionStart records one session start attempt.
func IncSessionStart(backend string, ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	SessionStartTotal.WithLabelValues(backend, result).Inc()
}

// ObserveSessionStartup records the time until the engine reported ready.
func ObserveSessionStartup(backend string, d time.Duration) {
	SessionStartupLatency.WithLabelValues(backend).Observe(d.Seconds())
}

// IncPlaybackError records one unrecoverable engine error.
func IncPlaybackError(backend string) {
	PlaybackErrorsTotal.WithLabelValues(backend).Inc()
}

// IncProbe records one probe lookup outcome.
func IncProbe(outcome string) {
	ProbeRequestsTotal.WithLabelValues(outcome).Inc()
}

// IncCastSession records one cast start attempt.
func IncCastSession(ok bool) {
	CastSessionsTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
}
