// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/testgen/internal/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout       = 10 * time.Second
	defaultDialTimeout = 15 * time.Second
	maxErrorBody       = 4096
)

// WebSocketDialer opens a persistent socket to the generation service.
type WebSocketDialer struct {
	URL          string
	Credentials  Credentials
	Header       http.Header
	DialTimeout  time.Duration
	PingInterval time.Duration
}

// Name implements Dialer.
func (d *WebSocketDialer) Name() string { return "websocket" }

// Dial connects and writes handshake as a single text message.
func (d *WebSocketDialer) Dial(ctx context.Context, handshake []byte) (Conn, error) {
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	header := http.Header{}
	for k, v := range d.Header {
		header[k] = append([]string(nil), v...)
	}
	d.Credentials.apply(header)

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, fmt.Errorf("websocket dial: %w", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))})
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetReadLimit(MaxFrameSize)

	// Not shared yet, no write lock needed.
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, handshake); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	pingCtx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		conn:   conn,
		cancel: cancel,
		logger: log.WithComponent("transport").With().Str(log.FieldTransport, "websocket").Logger(),
	}

	if d.PingInterval > 0 {
		pongTimeout := 2 * d.PingInterval
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		go c.pingLoop(pingCtx, d.PingInterval)
	}
	return c, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	logger  zerolog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	stop := context.AfterFunc(ctx, func() {
		// unblock ReadMessage
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case c.isClosed():
				return nil, ErrClosed
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil, fmt.Errorf("%w: %w", ErrClosed, io.EOF)
			case errors.Is(err, websocket.ErrReadLimit):
				return nil, fmt.Errorf("websocket read: %w", ErrFrameTooLarge)
			default:
				return nil, fmt.Errorf("websocket read: %w", err)
			}
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *wsConn) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug().Err(err).Str(log.FieldEvent, "transport.ping_failed").Msg("websocket ping failed")
				}
				return
			}
		}
	}
}
