// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrUnknownTransport is returned for a transport name with no dialer.
	ErrUnknownTransport = errors.New("unknown transport")

	// ErrMissingStore is returned when an app is built without a record store.
	ErrMissingStore = errors.New("record store is required")
)
