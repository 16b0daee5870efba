// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package protocol decodes and classifies the frames exchanged with the
// remote generation service.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the frame discriminator.
type Kind string

// Known discriminators of protocol version 1.
const (
	KindStatus     Kind = "status"
	KindJobCreated Kind = "job_created"
	KindStep       Kind = "step"
	KindDone       Kind = "done"
	KindStopped    Kind = "stopped"
	KindError      Kind = "error"

	// KindUnrecognized labels frames that classify to no event.
	KindUnrecognized Kind = "unrecognized"
)

// ErrMalformedFrame is returned by Decode for payloads that are not a JSON
// object envelope.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the wire envelope of every inbound message.
type Frame struct {
	Type   Kind            `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Decode parses the envelope without interpreting Result.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return f, nil
}
