// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for playbackd.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Playback attributes
	SessionIDKey = "session.id"
	BackendKey   = "playback.backend"
	ContainerKey = "playback.container"

	// Probe attributes
	ProbeURLKey     = "probe.url"
	ProbeOutcomeKey = "probe.outcome"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// Tracer returns a tracer from the global provider. With no provider
// installed this is a noop, so instrumentation is always safe to call.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates playback session span attributes.
func SessionAttributes(sessionID, backend, container string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if backend != "" {
		attrs = append(attrs, attribute.String(BackendKey, backend))
	}
	if container != "" {
		attrs = append(attrs, attribute.String(ContainerKey, container))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
