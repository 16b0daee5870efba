// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not json", "[1,2]", `"step"`} {
		_, err := Decode([]byte(raw))
		require.Error(t, err, "raw=%q", raw)
		assert.True(t, errors.Is(err, ErrMalformedFrame))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
		ok   bool
	}{
		{"status", `{"type":"status","result":{"message":"booting device"}}`, StatusEvent{Message: "booting device"}, true},
		{"job", `{"type":"job_created","result":{"deviceName":"Pixel 8","platformVersion":"14","screen":{"width":1080,"height":2400},"sessionId":"r-1"}}`,
			JobEvent{DeviceName: "Pixel 8", PlatformVersion: "14", Screen: Screen{Width: 1080, Height: 2400}, SessionID: "r-1"}, true},
		{"done without result", `{"type":"done"}`, DoneEvent{}, true},
		{"done with result", `{"type":"done","result":{"summary":"ok"}}`, DoneEvent{}, true},
		{"stopped", `{"type":"stopped","result":null}`, StoppedEvent{}, true},
		{"error", `{"type":"error","result":{"code":"E_DEVICE","reason":"device offline"}}`, ErrorEvent{Code: "E_DEVICE", Reason: "device offline"}, true},
		{"unknown type", `{"type":"heartbeat","result":{}}`, nil, false},
		{"missing type", `{"result":{"message":"x"}}`, nil, false},
		{"status with array result", `{"type":"status","result":["x"]}`, nil, false},
		{"job with wrong field type", `{"type":"job_created","result":{"screen":"big"}}`, nil, false},
		{"error with string result", `{"type":"error","result":"boom"}`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyRaw([]byte(tt.raw))
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Step(t *testing.T) {
	raw := `{"type":"step","result":{"step":{"action":"tap","target":"login"},"asset":{"url":"https://gen.example.com/a/1.png","name":"step-1.png"}}}`
	ev, ok := ClassifyRaw([]byte(raw))
	require.True(t, ok)

	step, ok := ev.(StepEvent)
	require.True(t, ok)
	assert.True(t, step.HasAsset())
	assert.Equal(t, "step-1.png", step.Asset.Name)
	assert.JSONEq(t, `{"action":"tap","target":"login"}`, string(step.Step))
}

func TestClassify_StepWithNonObjectDataIsStillAStep(t *testing.T) {
	// The payload is opaque here; its shape is checked when the step is applied.
	ev, ok := ClassifyRaw([]byte(`{"type":"step","result":{"step":42}}`))
	require.True(t, ok)
	step := ev.(StepEvent)
	assert.False(t, step.HasAsset())
	assert.Equal(t, json.RawMessage("42"), step.Step)
}

func TestKindOf(t *testing.T) {
	f, err := Decode([]byte(`{"type":"nope"}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnrecognized, KindOf(f))

	f, err = Decode([]byte(`{"type":"done"}`))
	require.NoError(t, err)
	assert.Equal(t, KindDone, KindOf(f))
}

func TestEncodeStart(t *testing.T) {
	b, err := EncodeStart(StartRequest{
		Credentials: Credentials{Username: "u", Password: "p"},
		Goal:        "log in and open settings",
		MaxSteps:    12,
		Devices:     []string{"Pixel 8"},
		Platform:    "android",
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type":"start",
		"version":1,
		"request":{
			"credentials":{"username":"u","password":"p"},
			"goal":"log in and open settings",
			"maxSteps":12,
			"devices":["Pixel 8"],
			"platform":"android",
			"priorActions":[],
			"assertions":[]
		}
	}`, string(b))
}
