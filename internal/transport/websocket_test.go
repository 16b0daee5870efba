// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// wsServer records the handshake and then sends frames followed by a normal close.
func wsServer(t *testing.T, frames []string, handshake chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "s3cret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if handshake != nil {
			handshake <- string(msg)
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// wait for the client's close reply
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

var goodCreds = Credentials{Username: "alice", Password: "s3cret"}

func TestWebSocket_HandshakeFramesAndCleanClose(t *testing.T) {
	handshake := make(chan string, 1)
	srv := wsServer(t, []string{`{"type":"status"}`, `{"type":"done"}`}, handshake)

	d := &WebSocketDialer{URL: wsURL(srv), Credentials: goodCreds, PingInterval: time.Second}
	assert.Equal(t, "websocket", d.Name())

	conn, err := d.Dial(context.Background(), []byte(`{"type":"start"}`))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, `{"type":"start"}`, <-handshake)

	ctx := context.Background()
	f1, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"status"}`, string(f1))
	f2, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"done"}`, string(f2))

	_, err = conn.Receive(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWebSocket_OversizedFrame(t *testing.T) {
	big := `{"type":"status","result":{"message":"` + strings.Repeat("x", MaxFrameSize) + `"}}`
	srv := wsServer(t, []string{`{"type":"status"}`, big}, nil)

	conn, err := (&WebSocketDialer{URL: wsURL(srv), Credentials: goodCreds}).Dial(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer conn.Close()

	f, err := conn.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"status"}`, string(f))

	_, err = conn.Receive(context.Background())
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.False(t, errors.Is(err, ErrClosed))
}

func TestWebSocket_StatusErrorOnRejectedUpgrade(t *testing.T) {
	srv := wsServer(t, nil, nil)
	d := &WebSocketDialer{URL: wsURL(srv), Credentials: Credentials{Username: "mallory"}}

	_, err := d.Dial(context.Background(), []byte(`{}`))
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "bad credentials")
}

func TestWebSocket_LocalCloseUnblocksReceive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn, err := (&WebSocketDialer{URL: wsURL(srv)}).Dial(context.Background(), []byte(`{}`))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close(), "second close is a no-op")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestWebSocket_ContextCancelUnblocksReceive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn, err := (&WebSocketDialer{URL: wsURL(srv)}).Dial(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocket_AbruptDropIsNotClean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status"}`))
		// drop the TCP connection without a close frame
		_ = conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	conn, err := (&WebSocketDialer{URL: wsURL(srv)}).Dial(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Receive(context.Background())
	require.NoError(t, err)
	_, err = conn.Receive(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrClosed))
}
