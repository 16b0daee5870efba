// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/testgen/internal/health"
	"github.com/ManuGH/testgen/internal/record"
	"github.com/ManuGH/testgen/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSession session.Snapshot

func (s staticSession) Snapshot() session.Snapshot { return session.Snapshot(s) }

func seededStore(t *testing.T) *record.MemoryStore {
	t.Helper()
	store := record.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), record.Record{
		ID:        "rec-1",
		SessionID: "sess-1",
		Goal:      "log in",
		Steps: []record.Step{
			{Index: 0, Data: json.RawMessage(`{"action":"tap"}`), Asset: &record.Asset{Name: "a.png", URL: "https://x/a.png", Path: "/d/a.png"}},
			{Index: 1, Data: json.RawMessage(`{"action":"type"}`)},
		},
		CompletedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	return store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_Probes(t *testing.T) {
	hm := health.NewManager("v-test")
	hm.RegisterChecker(health.NewSessionChecker(func() string { return "errored" }))
	h := NewRouter(Options{Version: "v-test", Health: hm})

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)

	metrics := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")
}

func TestRouter_RequestIDEchoed(t *testing.T) {
	h := NewRouter(Options{Version: "v-test"})

	rec := get(t, h, "/api/v1/version")
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestRouter_Session(t *testing.T) {
	h := NewRouter(Options{})
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/session").Code)

	h = NewRouter(Options{Session: staticSession{SessionID: "s-1", State: session.StateActive, Steps: 3}})
	rec := get(t, h, "/api/v1/session")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, session.StateActive, snap.State)
	assert.Equal(t, 3, snap.Steps)
}

func TestRouter_Records(t *testing.T) {
	h := NewRouter(Options{Records: seededStore(t)})

	rec := get(t, h, "/api/v1/records")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Records []record.Summary `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Records, 1)
	assert.Equal(t, 2, list.Records[0].Steps)

	rec = get(t, h, "/api/v1/records/rec-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var full record.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Equal(t, "log in", full.Goal)

	rec = get(t, h, "/api/v1/records/rec-1/assets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.png")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/records/nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/records?limit=-1").Code)
}

// brokenStore fails every read.
type brokenStore struct{ *record.MemoryStore }

func (brokenStore) List(context.Context, int) ([]record.Summary, error) {
	return nil, errors.New("disk gone")
}

func (brokenStore) Load(context.Context, string) (record.Record, error) {
	return record.Record{}, errors.New("disk gone")
}

func TestRouter_StoreFailureIs500(t *testing.T) {
	h := NewRouter(Options{Records: brokenStore{record.NewMemoryStore()}})

	rec := get(t, h, "/api/v1/records")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "store_error")
	assert.NotContains(t, rec.Body.String(), "disk gone")

	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/api/v1/records/rec-1").Code)
}

func TestRouter_RecordsWithoutStore(t *testing.T) {
	h := NewRouter(Options{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/records").Code)
}

func TestRateLimit(t *testing.T) {
	h := NewRouter(Options{RateLimit: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/version").Code)
	}
	rec := get(t, h, "/api/v1/version")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// probes are outside the limited group
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
}

func TestRecoverer(t *testing.T) {
	h := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := get(t, h, "/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Error)
	assert.Equal(t, rec.Header().Get(HeaderRequestID), body.RequestID)
}

func TestServeListener_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, ln, NewRouter(Options{Version: "v-test"})) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = client.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
