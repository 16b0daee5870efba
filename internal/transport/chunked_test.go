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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamServer(t *testing.T, contentType, body string, gotHandshake chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if _, _, ok := r.BasicAuth(); !ok {
			http.Error(w, "auth required", http.StatusUnauthorized)
			return
		}
		b, _ := io.ReadAll(r.Body)
		if gotHandshake != nil {
			gotHandshake <- string(b)
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func receiveAll(t *testing.T, conn Conn) ([]string, error) {
	t.Helper()
	var frames []string
	for {
		f, err := conn.Receive(context.Background())
		if err != nil {
			return frames, err
		}
		frames = append(frames, string(f))
	}
}

func TestHTTP_NDJSON(t *testing.T) {
	handshake := make(chan string, 1)
	srv := streamServer(t, "application/x-ndjson",
		"{\"type\":\"status\"}\n\n{\"type\":\"step\"}\r\n{\"type\":\"done\"}\n", handshake)

	d := &HTTPDialer{URL: srv.URL, Credentials: goodCreds}
	assert.Equal(t, "http", d.Name())
	conn, err := d.Dial(context.Background(), []byte(`{"type":"start"}`))
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, `{"type":"start"}`, <-handshake)

	frames, err := receiveAll(t, conn)
	assert.Equal(t, []string{`{"type":"status"}`, `{"type":"step"}`, `{"type":"done"}`}, frames)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestHTTP_ServerSentEvents(t *testing.T) {
	body := ": keepalive\n" +
		"event: frame\n" +
		"id: 1\n" +
		"data: {\"type\":\"status\",\n" +
		"data: \"result\":{\"message\":\"hi\"}}\n" +
		"\n" +
		"data: {\"type\":\"done\"}\n"
	srv := streamServer(t, "text/event-stream; charset=utf-8", body, nil)

	conn, err := (&HTTPDialer{URL: srv.URL, Credentials: goodCreds}).Dial(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer conn.Close()

	frames, err := receiveAll(t, conn)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"status","result":{"message":"hi"}}`, frames[0])
	assert.Equal(t, `{"type":"done"}`, frames[1])
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTP_NonSuccessStatus(t *testing.T) {
	srv := streamServer(t, "application/x-ndjson", "", nil)
	_, err := (&HTTPDialer{URL: srv.URL}).Dial(context.Background(), []byte(`{}`))
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "auth required", se.Body)
}

func TestHTTP_CloseUnblocksReceive(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	conn, err := (&HTTPDialer{URL: srv.URL}).Dial(context.Background(), []byte(`{}`))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Receive(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
	_, err = conn.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTP_OversizedFrame(t *testing.T) {
	big := strings.Repeat("x", MaxFrameSize+1)
	for _, tc := range []struct {
		name, contentType, body string
	}{
		{"ndjson", "application/x-ndjson", "{\"type\":\"status\"}\n" + big + "\n"},
		{"sse", "text/event-stream", "data: {\"type\":\"status\"}\n\ndata: " + big[:MaxFrameSize/2] + "\ndata: " + big[:MaxFrameSize/2] + "\n\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := streamServer(t, tc.contentType, tc.body, nil)
			conn, err := (&HTTPDialer{URL: srv.URL, Credentials: goodCreds}).Dial(context.Background(), []byte(`{}`))
			require.NoError(t, err)
			defer conn.Close()

			frames, err := receiveAll(t, conn)
			assert.Equal(t, []string{`{"type":"status"}`}, frames)
			require.ErrorIs(t, err, ErrFrameTooLarge)
			assert.False(t, errors.Is(err, ErrClosed))
		})
	}
}

func TestIsEventStream(t *testing.T) {
	assert.True(t, isEventStream("text/event-stream"))
	assert.True(t, isEventStream("text/event-stream; charset=utf-8"))
	assert.False(t, isEventStream("application/x-ndjson"))
	assert.False(t, isEventStream(""))
}
