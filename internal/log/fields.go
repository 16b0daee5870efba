// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID       = "session_id"
	FieldRemoteSessionID = "remote_session_id"
	FieldRequestID       = "request_id"
	FieldRecordID        = "record_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldKind      = "kind"
	FieldTransport = "transport"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Asset fields
	FieldAsset    = "asset"
	FieldURL      = "url"
	FieldAttempt  = "attempt"
	FieldStatus   = "status"
	FieldDuration = "duration"

	// Queue fields
	FieldTask    = "task"
	FieldPending = "pending"

	// Storage fields
	FieldBackend = "backend"
	FieldPath    = "path"
)
