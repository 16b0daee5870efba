// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"encoding/json"
	"errors"

	"github.com/ManuGH/testgen/internal/protocol"
	"github.com/ManuGH/testgen/internal/record"
)

// NotificationKind tags a Notification.
type NotificationKind string

const (
	NotifyStatus   NotificationKind = "status"
	NotifyJob      NotificationKind = "job"
	NotifyStep     NotificationKind = "step"
	NotifyRecord   NotificationKind = "record"
	NotifyFinished NotificationKind = "finished"
	NotifyError    NotificationKind = "error"
)

// StepNotice is the forwarded view of a step event.
type StepNotice struct {
	Index int                `json:"index"`
	Data  json.RawMessage    `json:"data"`
	Asset *protocol.AssetRef `json:"asset,omitempty"`
}

// ErrorNotice is the forwarded view of a fatal session error.
type ErrorNotice struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Notification is one message to the consumer. Exactly one payload field is
// set, matching Kind; finished carries none.
type Notification struct {
	Kind      NotificationKind      `json:"kind"`
	SessionID string                `json:"sessionId"`
	Status    *protocol.StatusEvent `json:"status,omitempty"`
	Job       *protocol.JobEvent    `json:"job,omitempty"`
	Step      *StepNotice           `json:"step,omitempty"`
	Record    *record.Record        `json:"record,omitempty"`
	Error     *ErrorNotice          `json:"error,omitempty"`

	// Err is the error behind an error notification.
	Err error `json:"-"`
}

// Listener receives notifications in order from a single goroutine at a time.
// Listeners must not block for long and must not call Run.
type Listener interface {
	Notify(n Notification)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notification)

func (f ListenerFunc) Notify(n Notification) { f(n) }

func errorNotice(err error) *ErrorNotice {
	notice := &ErrorNotice{Message: err.Error()}
	var se *ServerError
	if errors.As(err, &se) {
		notice.Code = se.Code
		notice.Reason = se.Reason
	}
	return notice
}
