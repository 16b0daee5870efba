// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"sync"
	"time"

	"github.com/ManuGH/testgen/internal/protocol"
	"github.com/ManuGH/testgen/internal/record"
)

// Session accumulates one generation run. Only queue tasks write it; the
// mutex exists for concurrent readers such as the ops surface.
type Session struct {
	mu sync.RWMutex

	id        string
	requestID string
	goal      string
	platform  string
	createdAt time.Time

	remoteID string
	device   record.Device
	steps    []record.Step
}

func newSession(id, requestID string, req Request, now time.Time) *Session {
	return &Session{
		id:        id,
		requestID: requestID,
		goal:      req.Goal,
		platform:  req.Platform,
		createdAt: now,
	}
}

// ID is the local session id.
func (s *Session) ID() string { return s.id }

// RemoteID is the id announced by the server, empty before the job event.
func (s *Session) RemoteID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteID
}

// StepCount returns the number of applied steps.
func (s *Session) StepCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}

func (s *Session) applyJob(ev protocol.JobEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteID = ev.SessionID
	s.device = record.Device{
		Name:            ev.DeviceName,
		PlatformVersion: ev.PlatformVersion,
		Screen:          record.Screen{Width: ev.Screen.Width, Height: ev.Screen.Height},
	}
}

func (s *Session) appendStep(st record.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, st)
}

// materialize copies the session into an immutable record.
func (s *Session) materialize(recordID string, completedAt time.Time) record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := make([]record.Step, len(s.steps))
	for i, st := range s.steps {
		cp := record.Step{Index: st.Index, Data: append([]byte(nil), st.Data...)}
		if st.Asset != nil {
			a := *st.Asset
			cp.Asset = &a
		}
		steps[i] = cp
	}
	return record.Record{
		ID:              recordID,
		SessionID:       s.id,
		RemoteSessionID: s.remoteID,
		RequestID:       s.requestID,
		Goal:            s.goal,
		Platform:        s.platform,
		Device:          s.device,
		Steps:           steps,
		CreatedAt:       s.createdAt,
		CompletedAt:     completedAt,
	}
}
