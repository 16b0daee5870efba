// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(metric))
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		err    error
		status int
		want   string
	}{
		{errors.New("dial"), 0, "error"},
		{nil, 200, "2xx"},
		{nil, 204, "2xx"},
		{nil, 302, "3xx"},
		{nil, 404, "404"},
		{nil, 401, "4xx"},
		{nil, 503, "5xx"},
		{errors.New("sink"), 200, "2xx"},
		{nil, 0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusClass(tt.err, tt.status), "status=%d err=%v", tt.status, tt.err)
	}
}

func TestRecordFetch(t *testing.T) {
	before := getCounterVecValue(t, assetFetchAttempts, "404")
	RecordFetchAttempt("404", 10*time.Millisecond)
	assert.Equal(t, before+1, getCounterVecValue(t, assetFetchAttempts, "404"))

	missing := getCounterVecValue(t, assetFetchOutcomes, "missing")
	RecordFetchOutcome(false, time.Second)
	assert.Equal(t, missing+1, getCounterVecValue(t, assetFetchOutcomes, "missing"))
}

func TestSessionGauge(t *testing.T) {
	active := getGaugeValue(t, sessionsActive)
	completed := getCounterVecValue(t, sessionsTerminal, "completed")

	SessionOpened()
	assert.Equal(t, active+1, getGaugeValue(t, sessionsActive))
	SessionEnded("completed")
	assert.Equal(t, active, getGaugeValue(t, sessionsActive))
	assert.Equal(t, completed+1, getCounterVecValue(t, sessionsTerminal, "completed"))
}

func TestPromhttpExposure(t *testing.T) {
	RecordFrame("status")
	RecordTask("ok", time.Millisecond)
	RecordSave("memory", nil)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	for _, name := range []string{
		"testgen_frames_received_total",
		"testgen_queue_tasks_total",
		"testgen_records_saved_total",
	} {
		assert.True(t, strings.Contains(text, name), "missing %s", name)
	}
}
