// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"bytes"
	"encoding/json"
)

// Classify maps a frame to exactly one event. It returns false for unknown
// discriminators and for known discriminators whose result does not decode
// into the event shape.
func Classify(f Frame) (Event, bool) {
	switch f.Type {
	case KindStatus:
		var ev StatusEvent
		if !decodeResult(f.Result, &ev) {
			return nil, false
		}
		return ev, true
	case KindJobCreated:
		var ev JobEvent
		if !decodeResult(f.Result, &ev) {
			return nil, false
		}
		return ev, true
	case KindStep:
		var ev StepEvent
		if !decodeResult(f.Result, &ev) {
			return nil, false
		}
		return ev, true
	case KindDone:
		return DoneEvent{}, true
	case KindStopped:
		return StoppedEvent{}, true
	case KindError:
		var ev ErrorEvent
		if !decodeResult(f.Result, &ev) {
			return nil, false
		}
		return ev, true
	default:
		return nil, false
	}
}

// ClassifyRaw decodes and classifies in one call.
func ClassifyRaw(raw []byte) (Event, bool) {
	f, err := Decode(raw)
	if err != nil {
		return nil, false
	}
	return Classify(f)
}

// KindOf returns the metrics label for a frame.
func KindOf(f Frame) Kind {
	if ev, ok := Classify(f); ok {
		return ev.Kind()
	}
	return KindUnrecognized
}

// decodeResult requires a JSON object; a missing result decodes to the zero value.
func decodeResult(raw json.RawMessage, dst any) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	if trimmed[0] != '{' {
		return false
	}
	return json.Unmarshal(trimmed, dst) == nil
}
