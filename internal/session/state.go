// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"errors"
	"fmt"
)

// State of a session. open -> active -> completed | stopped | errored.
type State string

const (
	StateOpen      State = "open"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateErrored   State = "errored"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateStopped, StateErrored:
		return true
	default:
		return false
	}
}

var (
	// ErrTransportClosed means the stream ended before done or stopped.
	ErrTransportClosed = errors.New("connection closed before completion")
	// ErrTransport wraps dial and read failures of the control connection.
	ErrTransport = errors.New("transport failure")
	// ErrServerError is matched by every *ServerError.
	ErrServerError = errors.New("server reported an error")
	// ErrTaskFailed wraps the failure that halted the ordered queue.
	ErrTaskFailed = errors.New("session task failed")
	// ErrMalformedStep is returned by a step task whose payload is not a JSON object.
	ErrMalformedStep = errors.New("malformed step payload")
	// ErrAlreadyRun is returned when Run is called twice on one controller.
	ErrAlreadyRun = errors.New("controller already ran")
)

// ServerError is a failure reported by the generation service.
type ServerError struct {
	Code   string
	Reason string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server error: %s", e.Reason)
	}
	return fmt.Sprintf("server error %s: %s", e.Code, e.Reason)
}

func (e *ServerError) Unwrap() error { return ErrServerError }
