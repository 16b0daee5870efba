// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	HTTPStatusCodeKey = "http.status_code"
	HTTPURLKey        = "http.url"

	SessionIDKey        = "session.id"
	SessionRemoteIDKey  = "session.remote_id"
	SessionTransportKey = "session.transport"
	SessionStateKey     = "session.state"
	SessionStepsKey     = "session.steps"

	AssetNameKey     = "asset.name"
	AssetAttemptKey  = "asset.attempt"
	AssetAttemptsKey = "asset.attempts"
	AssetFetchedKey  = "asset.fetched"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes creates session-related span attributes.
func SessionAttributes(sessionID, transport string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if transport != "" {
		attrs = append(attrs, attribute.String(SessionTransportKey, transport))
	}
	return attrs
}

// AssetAttributes creates asset-fetch span attributes.
func AssetAttributes(sessionID, name, url string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.String(AssetNameKey, name),
		attribute.String(HTTPURLKey, url),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
