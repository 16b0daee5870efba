// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import "encoding/json"

// Event is one classified inbound frame. The set of implementations is closed.
type Event interface {
	Kind() Kind
	isEvent()
}

// StatusEvent carries a human readable progress message.
type StatusEvent struct {
	Message string `json:"message"`
}

// Screen is the device screen size reported on job creation.
type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// JobEvent announces the remote job and the device it runs on.
type JobEvent struct {
	DeviceName      string `json:"deviceName"`
	PlatformVersion string `json:"platformVersion"`
	Screen          Screen `json:"screen"`
	SessionID       string `json:"sessionId"`
}

// AssetRef identifies a remote binary and its logical target name.
type AssetRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// StepEvent is one completed generation step. Step is opaque to the client.
type StepEvent struct {
	Step  json.RawMessage `json:"step"`
	Asset AssetRef        `json:"asset"`
}

// HasAsset reports whether the step references a remote asset.
func (e StepEvent) HasAsset() bool {
	return e.Asset.URL != ""
}

// DoneEvent marks successful completion of the remote process.
type DoneEvent struct{}

// StoppedEvent marks a remote stop without a result.
type StoppedEvent struct{}

// ErrorEvent is a server-reported failure.
type ErrorEvent struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (StatusEvent) Kind() Kind  { return KindStatus }
func (JobEvent) Kind() Kind     { return KindJobCreated }
func (StepEvent) Kind() Kind    { return KindStep }
func (DoneEvent) Kind() Kind    { return KindDone }
func (StoppedEvent) Kind() Kind { return KindStopped }
func (ErrorEvent) Kind() Kind   { return KindError }

func (StatusEvent) isEvent()  {}
func (JobEvent) isEvent()     {}
func (StepEvent) isEvent()    {}
func (DoneEvent) isEvent()    {}
func (StoppedEvent) isEvent() {}
func (ErrorEvent) isEvent()   {}
