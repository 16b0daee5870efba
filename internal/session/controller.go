// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session drives one generation run over one connection.
//
// A single reader goroutine classifies frames, forwards notifications and
// submits mutation tasks to an ordered queue. Queue tasks are the only writers
// of the Session, so the final record always lists steps in arrival order no
// matter how long each asset download takes.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/testgen/internal/assets"
	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/metrics"
	"github.com/ManuGH/testgen/internal/protocol"
	"github.com/ManuGH/testgen/internal/queue"
	"github.com/ManuGH/testgen/internal/record"
	"github.com/ManuGH/testgen/internal/telemetry"
	"github.com/ManuGH/testgen/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Fetcher downloads one step asset. *assets.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, auth assets.Auth, sink assets.Sink, key assets.Key) assets.Outcome
}

// Request describes what to generate.
type Request struct {
	Goal            string
	MaxSteps        int
	Devices         []string
	Platform        string
	PlatformVersion string
	PriorActions    []json.RawMessage
	Assertions      []string
}

// Options wires a Controller to its collaborators.
type Options struct {
	Dialer  transport.Dialer
	Fetcher Fetcher
	Sink    assets.Sink
	Saver   record.Saver
	// Credentials go into the start frame and authenticate asset downloads.
	Credentials assets.Auth
	Listener    Listener

	Now   func() time.Time
	NewID func() string
}

// Controller owns one session. It is not reusable.
type Controller struct {
	dialer   transport.Dialer
	fetcher  Fetcher
	sink     assets.Sink
	saver    record.Saver
	auth     assets.Auth
	listener Listener
	now      func() time.Time
	newID    func() string

	started atomic.Bool
	state   atomic.Value // State

	// mu serializes notifications with state transitions so nothing is
	// emitted after a terminal state.
	mu     sync.Mutex
	logger zerolog.Logger

	// infoMu guards err and session for readers outside Run. Listeners may
	// call Snapshot while mu is held.
	infoMu  sync.Mutex
	err     error
	session *Session

	conn      transport.Conn
	connMu    sync.Mutex
	closeOnce sync.Once

	// reader-only
	nextIndex int
}

// NewController validates opts and returns a controller in state open.
func NewController(opts Options) (*Controller, error) {
	switch {
	case opts.Dialer == nil:
		return nil, errors.New("session: dialer is required")
	case opts.Fetcher == nil:
		return nil, errors.New("session: fetcher is required")
	case opts.Sink == nil:
		return nil, errors.New("session: asset sink is required")
	case opts.Saver == nil:
		return nil, errors.New("session: record saver is required")
	}
	c := &Controller{
		dialer:   opts.Dialer,
		fetcher:  opts.Fetcher,
		sink:     opts.Sink,
		saver:    opts.Saver,
		auth:     opts.Credentials,
		listener: opts.Listener,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   log.WithComponent("session"),
	}
	if c.listener == nil {
		c.listener = ListenerFunc(func(Notification) {})
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.NewString() }
	}
	c.state.Store(StateOpen)
	return c, nil
}

// State returns the current state. Safe for concurrent use.
func (c *Controller) State() State {
	return c.state.Load().(State)
}

// Session returns the session, nil before Run.
func (c *Controller) Session() *Session {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.session
}

// Err returns the error that put the session into errored.
func (c *Controller) Err() error {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.err
}

// Run opens the connection, processes frames until a terminal state is
// reached and waits for every queued task before returning. It returns nil
// for completed and stopped sessions and the session error otherwise.
func (c *Controller) Run(ctx context.Context, req Request) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	sessionID := c.newID()
	requestID := c.newID()
	ctx = log.ContextWithSessionID(ctx, sessionID)
	ctx = log.ContextWithRequestID(ctx, requestID)

	ctx, span := telemetry.Tracer("testgen.session").Start(ctx, "testgen.session.run")
	span.SetAttributes(telemetry.SessionAttributes(sessionID, c.dialer.Name())...)
	defer span.End()

	c.infoMu.Lock()
	c.session = newSession(sessionID, requestID, req, c.now())
	c.infoMu.Unlock()
	c.logger = log.WithContext(ctx, c.logger).With().Str(log.FieldTransport, c.dialer.Name()).Logger()

	metrics.SessionOpened()
	c.logger.Info().
		Str(log.FieldEvent, "session.open").
		Str("goal", req.Goal).
		Msg("session opened")

	q := queue.New(ctx,
		queue.WithLogger(c.logger),
		queue.WithFailureHandler(func(err error) {
			c.fail(fmt.Errorf("%w: %w", ErrTaskFailed, err))
		}),
	)

	if err := c.open(ctx, req); err != nil {
		c.fail(err)
	} else {
		c.read(ctx, q)
	}

	q.Close()
	q.Wait()
	c.closeConn()

	state := c.State()
	metrics.SessionEnded(string(state))
	span.SetAttributes(
		attribute.String(telemetry.SessionStateKey, string(state)),
		attribute.Int(telemetry.SessionStepsKey, c.session.StepCount()),
	)
	if remote := c.session.RemoteID(); remote != "" {
		span.SetAttributes(attribute.String(telemetry.SessionRemoteIDKey, remote))
	}

	err := c.Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	c.logger.Info().
		Str(log.FieldEvent, "session.closed").
		Str(log.FieldNewState, string(state)).
		Int("steps", c.session.StepCount()).
		Msg("session finished")
	return err
}

// open sends the start request exactly once as part of connecting.
func (c *Controller) open(ctx context.Context, req Request) error {
	handshake, err := protocol.EncodeStart(protocol.StartRequest{
		Credentials:     protocol.Credentials{Username: c.auth.Username, Password: c.auth.Password},
		Goal:            req.Goal,
		MaxSteps:        req.MaxSteps,
		Devices:         req.Devices,
		Platform:        req.Platform,
		PlatformVersion: req.PlatformVersion,
		PriorActions:    req.PriorActions,
		Assertions:      req.Assertions,
	})
	if err != nil {
		return err
	}

	conn, err := c.dialer.Dial(ctx, handshake)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.transition(StateActive)
	return nil
}

// read is the single reader loop. It returns once a frame ends reading or the
// session is terminal.
func (c *Controller) read(ctx context.Context, q *queue.Queue) {
	for {
		raw, err := c.conn.Receive(ctx)
		if err != nil {
			if c.State().Terminal() {
				return
			}
			if errors.Is(err, transport.ErrClosed) {
				c.fail(fmt.Errorf("%w: %w", ErrTransportClosed, err))
			} else {
				c.fail(fmt.Errorf("%w: %w", ErrTransport, err))
			}
			return
		}
		if stop := c.handleFrame(raw, q); stop {
			return
		}
		if c.State().Terminal() {
			return
		}
	}
}

// handleFrame classifies one frame. It reports whether reading must stop.
func (c *Controller) handleFrame(raw []byte, q *queue.Queue) bool {
	frame, err := protocol.Decode(raw)
	if err != nil {
		metrics.RecordFrame(string(protocol.KindUnrecognized))
		c.logger.Debug().Err(err).Str(log.FieldEvent, "session.frame_dropped").Msg("dropping malformed frame")
		return false
	}
	ev, ok := protocol.Classify(frame)
	if !ok {
		metrics.RecordFrame(string(protocol.KindUnrecognized))
		c.logger.Debug().
			Str(log.FieldEvent, "session.frame_dropped").
			Str(log.FieldKind, string(frame.Type)).
			Msg("dropping unrecognized frame")
		return false
	}
	metrics.RecordFrame(string(ev.Kind()))

	sid := c.session.ID()
	switch ev := ev.(type) {
	case protocol.StatusEvent:
		c.emit(Notification{Kind: NotifyStatus, SessionID: sid, Status: &ev})

	case protocol.JobEvent:
		c.emit(Notification{Kind: NotifyJob, SessionID: sid, Job: &ev})
		c.submit(q, c.jobTask(ev))

	case protocol.StepEvent:
		idx := c.nextIndex
		c.nextIndex++
		notice := &StepNotice{Index: idx, Data: ev.Step}
		if ev.HasAsset() {
			ref := ev.Asset
			notice.Asset = &ref
		}
		c.emit(Notification{Kind: NotifyStep, SessionID: sid, Step: notice})
		c.submit(q, c.stepTask(idx, ev))

	case protocol.DoneEvent:
		c.logger.Debug().Str(log.FieldEvent, "session.done_received").Int(log.FieldPending, q.Pending()).Msg("done received, finalizing")
		c.submit(q, c.finalizeTask())
		return true

	case protocol.StoppedEvent:
		c.terminate(StateStopped, Notification{Kind: NotifyFinished, SessionID: sid})
		return true

	case protocol.ErrorEvent:
		c.fail(&ServerError{Code: ev.Code, Reason: ev.Reason})
		return true
	}
	return false
}

func (c *Controller) submit(q *queue.Queue, task queue.Task) {
	if err := q.Submit(task); err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrTaskFailed, err))
	}
}

func (c *Controller) jobTask(ev protocol.JobEvent) queue.Task {
	return func(context.Context) error {
		c.session.applyJob(ev)
		c.logger.Info().
			Str(log.FieldEvent, "session.job").
			Str(log.FieldRemoteSessionID, ev.SessionID).
			Str("device", ev.DeviceName).
			Msg("remote job created")
		return nil
	}
}

func (c *Controller) stepTask(idx int, ev protocol.StepEvent) queue.Task {
	return func(ctx context.Context) error {
		if !isJSONObject(ev.Step) {
			return fmt.Errorf("%w: step %d", ErrMalformedStep, idx)
		}
		st := record.Step{Index: idx, Data: append([]byte(nil), ev.Step...)}

		if ev.HasAsset() {
			name := assetName(ev.Asset, idx)
			key := assets.Key{SessionID: c.session.ID(), Name: assetKey(idx, name)}
			out := c.fetcher.Fetch(ctx, ev.Asset.URL, c.auth, c.sink, key)
			st.Asset = &record.Asset{
				Name:    name,
				URL:     ev.Asset.URL,
				Path:    out.Location,
				Missing: !out.Fetched,
			}
			if !out.Fetched {
				c.logger.Warn().
					Err(out.LastErr).
					Str(log.FieldEvent, "session.asset_missing").
					Str(log.FieldAsset, name).
					Int(log.FieldAttempt, out.Attempts).
					Msg("step recorded without asset")
			}
		}

		c.session.appendStep(st)
		return nil
	}
}

func (c *Controller) finalizeTask() queue.Task {
	return func(ctx context.Context) error {
		if c.State().Terminal() {
			return nil
		}
		sid := c.session.ID()
		rec := c.session.materialize(c.newID(), c.now())

		var recNote *Notification
		if len(rec.Steps) > 0 {
			err := c.saver.Save(ctx, rec)
			metrics.RecordSave(backendOf(c.saver), err)
			if err != nil {
				return fmt.Errorf("save record: %w", err)
			}
			c.logger.Info().
				Str(log.FieldEvent, "session.record_saved").
				Str(log.FieldRecordID, rec.ID).
				Int("steps", len(rec.Steps)).
				Msg("record saved")
			recNote = &Notification{Kind: NotifyRecord, SessionID: sid, Record: &rec}
		}

		finished := Notification{Kind: NotifyFinished, SessionID: sid}
		if recNote != nil {
			c.terminate(StateCompleted, *recNote, finished)
		} else {
			c.terminate(StateCompleted, finished)
		}
		return nil
	}
}

// emit forwards n unless the session is already terminal.
func (c *Controller) emit(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State().Terminal() {
		return
	}
	c.listener.Notify(n)
}

// terminate emits the final notifications, moves to state and closes the
// connection. Only the first terminal transition has any effect.
func (c *Controller) terminate(state State, final ...Notification) bool {
	c.mu.Lock()
	if c.State().Terminal() {
		c.mu.Unlock()
		return false
	}
	for _, n := range final {
		c.listener.Notify(n)
	}
	c.setState(state)
	c.mu.Unlock()

	c.closeConn()
	return true
}

// fail moves the session to errored with exactly one error notification.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.State().Terminal() {
		c.mu.Unlock()
		c.logger.Debug().Err(err).Str(log.FieldEvent, "session.error_suppressed").Msg("error after terminal state ignored")
		return
	}
	c.infoMu.Lock()
	c.err = err
	sid := ""
	if c.session != nil {
		sid = c.session.ID()
	}
	c.infoMu.Unlock()
	c.listener.Notify(Notification{Kind: NotifyError, SessionID: sid, Error: errorNotice(err), Err: err})
	c.setState(StateErrored)
	c.mu.Unlock()

	c.logger.Error().Err(err).Str(log.FieldEvent, "session.error").Msg("session failed")
	c.closeConn()
}

func (c *Controller) transition(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State().Terminal() {
		return
	}
	c.setState(state)
}

// setState requires c.mu.
func (c *Controller) setState(state State) {
	old := c.State()
	c.state.Store(state)
	c.logger.Debug().
		Str(log.FieldEvent, "session.state").
		Str(log.FieldOldState, string(old)).
		Str(log.FieldNewState, string(state)).
		Msg("session state changed")
}

func (c *Controller) closeConn() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return
	}
	c.closeOnce.Do(func() {
		if err := conn.Close(); err != nil {
			c.logger.Debug().Err(err).Str(log.FieldEvent, "session.close_failed").Msg("closing connection")
		}
	})
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

// assetKey is the storage name of a step's asset. The step index keeps two
// steps that announce the same name from sharing one file.
func assetKey(idx int, name string) string {
	return fmt.Sprintf("%04d-%s", idx, name)
}

// assetName picks a flat file name for an asset: the announced name, else the
// last URL path segment, else a name derived from the step index.
func assetName(ref protocol.AssetRef, idx int) string {
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		if u, err := url.Parse(ref.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	if name == "" || name == "." || name == ".." || name == "_" {
		name = fmt.Sprintf("step-%d", idx)
	}
	return name
}

func backendOf(s record.Saver) string {
	if b, ok := s.(interface{ Backend() string }); ok {
		return b.Backend()
	}
	return "custom"
}

// Snapshot is a point-in-time view of a controller for the ops surface.
type Snapshot struct {
	SessionID string `json:"sessionId,omitempty"`
	RemoteID  string `json:"remoteSessionId,omitempty"`
	State     State  `json:"state"`
	Steps     int    `json:"steps"`
	Error     string `json:"error,omitempty"`
}

// Snapshot is safe for concurrent use with Run.
func (c *Controller) Snapshot() Snapshot {
	c.infoMu.Lock()
	s, err := c.session, c.err
	c.infoMu.Unlock()

	snap := Snapshot{State: c.State()}
	if s != nil {
		snap.SessionID = s.ID()
		snap.RemoteID = s.RemoteID()
		snap.Steps = s.StepCount()
	}
	if err != nil {
		snap.Error = err.Error()
	}
	return snap
}
