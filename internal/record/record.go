// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package record defines the aggregate produced by a completed session and
// the stores that persist it.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when saving an id that was saved before.
	ErrExists = errors.New("record already exists")
	// ErrInvalid is returned for records that cannot be stored.
	ErrInvalid = errors.New("invalid record")
)

// Screen is the device screen size.
type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Device describes where the remote job ran.
type Device struct {
	Name            string `json:"name"`
	PlatformVersion string `json:"platformVersion"`
	Screen          Screen `json:"screen"`
}

// Asset is the binary attached to a step. Missing is set when every fetch
// attempt failed; Path is empty in that case.
type Asset struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Path    string `json:"path,omitempty"`
	Missing bool   `json:"missing"`
}

// Step is one step in arrival order. Data is the opaque step payload.
type Step struct {
	Index int             `json:"index"`
	Data  json.RawMessage `json:"data"`
	Asset *Asset          `json:"asset,omitempty"`
}

// Record is the immutable aggregate of one completed session.
type Record struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"sessionId"`
	RemoteSessionID string    `json:"remoteSessionId,omitempty"`
	RequestID       string    `json:"requestId,omitempty"`
	Goal            string    `json:"goal"`
	Platform        string    `json:"platform,omitempty"`
	Device          Device    `json:"device"`
	Steps           []Step    `json:"steps"`
	CreatedAt       time.Time `json:"createdAt"`
	CompletedAt     time.Time `json:"completedAt"`
}

// Summary is the listing view of a record.
type Summary struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Goal        string    `json:"goal"`
	Platform    string    `json:"platform,omitempty"`
	Device      string    `json:"device,omitempty"`
	Steps       int       `json:"steps"`
	CompletedAt time.Time `json:"completedAt"`
}

// Summarize returns the listing view of r.
func (r Record) Summarize() Summary {
	return Summary{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Goal:        r.Goal,
		Platform:    r.Platform,
		Device:      r.Device.Name,
		Steps:       len(r.Steps),
		CompletedAt: r.CompletedAt,
	}
}

// Assets returns the step assets in step order.
func (r Record) Assets() []Asset {
	var out []Asset
	for _, s := range r.Steps {
		if s.Asset != nil {
			out = append(out, *s.Asset)
		}
	}
	return out
}

// PriorActions returns the step payloads, used to continue a saved run.
func (r Record) PriorActions() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Data)
	}
	return out
}

func (r Record) validate() error {
	if r.ID == "" {
		return errors.Join(ErrInvalid, errors.New("empty id"))
	}
	return nil
}

// Saver persists a record. The session core depends on nothing else.
type Saver interface {
	Save(ctx context.Context, r Record) error
}

// Store is a full record backend used by the CLI and the ops surface.
type Store interface {
	Saver
	Load(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Summary, error)
	LoadAssets(ctx context.Context, id string) ([]Asset, error)
	// Check reports whether the backend is reachable.
	Check(ctx context.Context) error
	Backend() string
	Close() error
}
