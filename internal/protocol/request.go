// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/ManuGH/testgen/internal/version"
)

// KindStart is the discriminator of the single outbound frame.
const KindStart Kind = "start"

// Credentials authenticate the session against the device farm.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// StartRequest describes one generation run.
type StartRequest struct {
	Credentials     Credentials       `json:"credentials"`
	Goal            string            `json:"goal"`
	MaxSteps        int               `json:"maxSteps,omitempty"`
	Devices         []string          `json:"devices"`
	Platform        string            `json:"platform,omitempty"`
	PlatformVersion string            `json:"platformVersion,omitempty"`
	PriorActions    []json.RawMessage `json:"priorActions"`
	Assertions      []string          `json:"assertions"`
}

// StartFrame is the outbound handshake frame.
type StartFrame struct {
	Type    Kind         `json:"type"`
	Version int          `json:"version"`
	Request StartRequest `json:"request"`
}

// EncodeStart serializes the handshake. Nil slices are sent as empty arrays.
func EncodeStart(req StartRequest) ([]byte, error) {
	if req.Devices == nil {
		req.Devices = []string{}
	}
	if req.PriorActions == nil {
		req.PriorActions = []json.RawMessage{}
	}
	if req.Assertions == nil {
		req.Assertions = []string{}
	}
	b, err := json.Marshal(StartFrame{
		Type:    KindStart,
		Version: version.ProtocolVersion,
		Request: req,
	})
	if err != nil {
		return nil, fmt.Errorf("encode start frame: %w", err)
	}
	return b, nil
}
