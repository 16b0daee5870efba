// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transport carries the session frame stream. Both variants deliver
// the same sequence of raw JSON frames; the caller does not know which one
// it talks to.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrClosed is returned by Receive once the stream has ended, either because
// the remote side closed it cleanly or because Close was called.
var ErrClosed = errors.New("transport closed")

// MaxFrameSize bounds one inbound frame on every transport. A larger frame
// ends the stream with ErrFrameTooLarge.
const MaxFrameSize = 1 << 20

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// Dialer opens a connection and sends the handshake frame exactly once.
type Dialer interface {
	Dial(ctx context.Context, handshake []byte) (Conn, error)
	Name() string
}

// Conn is one open frame stream. Receive is called from a single goroutine;
// Close may be called concurrently with Receive.
type Conn interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// StatusError reports a non-2xx answer to the connection attempt.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Credentials for the control connection. Empty means no Authorization header.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) apply(h http.Header) {
	if c.Username == "" && c.Password == "" {
		return
	}
	req := http.Request{Header: h}
	req.SetBasicAuth(c.Username, c.Password)
}
