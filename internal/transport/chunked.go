// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	scanInitialBuffer = 64 * 1024
	// room for the frame plus a CRLF terminator
	scanMaxLine = MaxFrameSize + 2
)

// HTTPDialer posts the handshake and reads frames from the streamed response.
// Newline-delimited JSON and server-sent events are both accepted; the
// response Content-Type selects the framing.
type HTTPDialer struct {
	URL         string
	Credentials Credentials
	Header      http.Header
	Client      *http.Client
}

// Name implements Dialer.
func (d *HTTPDialer) Name() string { return "http" }

// Dial sends the request. The returned Conn owns the response body.
func (d *HTTPDialer) Dial(ctx context.Context, handshake []byte) (Conn, error) {
	client := d.Client
	if client == nil {
		// no overall timeout: the response stays open for the whole session
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, d.URL, bytes.NewReader(handshake))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	for k, v := range d.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson, text/event-stream")
	d.Credentials.apply(req.Header)

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		defer cancel()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("stream request: %w", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, scanInitialBuffer), scanMaxLine)

	return &streamConn{
		body:    resp.Body,
		cancel:  cancel,
		scanner: scanner,
		sse:     isEventStream(resp.Header.Get("Content-Type")),
	}, nil
}

func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/event-stream"
}

type streamConn struct {
	body    io.ReadCloser
	cancel  context.CancelFunc
	scanner *bufio.Scanner
	sse     bool
	err     error

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (c *streamConn) Receive(ctx context.Context) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()

	var frame []byte
	var ok bool
	if c.sse {
		frame, ok = c.nextEvent()
	} else {
		frame, ok = c.nextLine()
	}
	if ok {
		return frame, nil
	}

	err := c.err
	if err == nil {
		err = c.scanner.Err()
	}
	if errors.Is(err, bufio.ErrTooLong) {
		err = ErrFrameTooLarge
	}
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case c.isClosed():
		return nil, ErrClosed
	case err == nil:
		return nil, fmt.Errorf("%w: %w", ErrClosed, io.EOF)
	default:
		return nil, fmt.Errorf("stream read: %w", err)
	}
}

// nextLine returns the next non-blank NDJSON line.
func (c *streamConn) nextLine() ([]byte, bool) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if len(line) > MaxFrameSize {
			c.err = ErrFrameTooLarge
			return nil, false
		}
		return append([]byte(nil), line...), true
	}
	return nil, false
}

// nextEvent joins data: lines until a blank line. Other fields and comments
// are ignored. A final event without trailing blank line is still delivered.
func (c *streamConn) nextEvent() ([]byte, bool) {
	var data []string
	size := 0
	for c.scanner.Scan() {
		line := c.scanner.Text()
		if line == "" {
			if len(data) == 0 {
				continue
			}
			return []byte(strings.Join(data, "\n")), true
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			chunk := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			size += len(chunk)
			if len(data) > 0 {
				size++
			}
			if size > MaxFrameSize {
				c.err = ErrFrameTooLarge
				return nil, false
			}
			data = append(data, chunk)
		}
	}
	if len(data) > 0 && c.scanner.Err() == nil {
		return []byte(strings.Join(data, "\n")), true
	}
	return nil, false
}

func (c *streamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		err = c.body.Close()
	})
	return err
}

func (c *streamConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
