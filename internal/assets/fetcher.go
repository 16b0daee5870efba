// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package assets downloads step assets from the generation service.
//
// A fetch never fails hard: after the configured number of attempts it
// returns an Outcome with Fetched=false and the caller decides what a missing
// asset means.
package assets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/metrics"
	"github.com/ManuGH/testgen/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxAttempts   = 10
	DefaultRetryInterval = time.Second
	defaultTimeout       = 30 * time.Second
	defaultUserAgent     = "testgen"
)

var (
	errEmptyBody = errors.New("empty response body")
	errNotReady  = errors.New("asset not yet available")
)

// Auth is the basic-auth pair sent with every attempt.
type Auth struct {
	Username string
	Password string
}

// Outcome reports how a fetch ended.
type Outcome struct {
	Fetched    bool
	Attempts   int
	LastStatus int
	LastErr    error
	Location   string
	Duration   time.Duration
}

// Options configures a Fetcher. Zero values take the defaults.
type Options struct {
	MaxAttempts    int
	RetryInterval  time.Duration
	RequestTimeout time.Duration
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit  float64
	Burst      int
	UserAgent  string
	HTTPClient *http.Client
}

// Fetcher performs authenticated, retrying GETs.
type Fetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	interval    time.Duration
	userAgent   string
	sleep       func(ctx context.Context, d time.Duration) error
	logger      zerolog.Logger
}

// NewFetcher builds a Fetcher. The default HTTP client is instrumented with otelhttp.
func NewFetcher(opts Options) *Fetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := opts.HTTPClient
	if client == nil {
		base := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: opts.RequestTimeout,
		}
		client = &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: otelhttp.NewTransport(base),
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Fetcher{
		client:      client,
		limiter:     limiter,
		maxAttempts: opts.MaxAttempts,
		interval:    opts.RetryInterval,
		userAgent:   opts.UserAgent,
		sleep:       sleepWithContext,
		logger:      log.WithComponent("assets"),
	}
}

// MaxAttempts returns the configured attempt budget.
func (f *Fetcher) MaxAttempts() int {
	return f.maxAttempts
}

// Fetch downloads url into sink under key. It retries 404s, other non-2xx
// statuses, transport errors, empty bodies and sink errors, waiting the retry
// interval between attempts. Exhaustion and context cancellation are soft.
func (f *Fetcher) Fetch(ctx context.Context, url string, auth Auth, sink Sink, key Key) Outcome {
	tracer := telemetry.Tracer("testgen.assets")
	ctx, span := tracer.Start(ctx, "testgen.asset.fetch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(telemetry.AssetAttributes(key.SessionID, key.Name, url)...)
	defer span.End()

	logger := log.WithContext(ctx, f.logger).With().
		Str(log.FieldSessionID, key.SessionID).
		Str(log.FieldAsset, key.Name).
		Logger()

	start := time.Now()
	out := Outcome{}
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.interval); err != nil {
				out.LastErr = err
				break
			}
		}
		out.Attempts = attempt

		location, status, err := f.attempt(ctx, tracer, url, auth, sink, key, attempt)
		out.LastStatus = status
		out.LastErr = err
		if err == nil {
			out.Fetched = true
			out.Location = location
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.LastErr = ctxErr
			break
		}

		ev := logger.Warn()
		if errors.Is(err, errNotReady) {
			ev = logger.Debug()
		}
		ev.Err(err).
			Str(log.FieldEvent, "asset.fetch.retry").
			Int(log.FieldAttempt, attempt).
			Int(log.FieldStatus, status).
			Msg("asset fetch attempt failed")
	}
	out.Duration = time.Since(start)
	metrics.RecordFetchOutcome(out.Fetched, out.Duration)

	span.SetAttributes(
		attribute.Int(telemetry.AssetAttemptsKey, out.Attempts),
		attribute.Bool(telemetry.AssetFetchedKey, out.Fetched),
	)
	if out.Fetched {
		span.SetStatus(codes.Ok, "")
		logger.Debug().
			Str(log.FieldEvent, "asset.fetch.ok").
			Int(log.FieldAttempt, out.Attempts).
			Dur(log.FieldDuration, out.Duration).
			Str(log.FieldPath, out.Location).
			Msg("asset fetched")
		return out
	}

	if out.LastErr != nil {
		span.RecordError(out.LastErr)
	}
	span.SetStatus(codes.Error, "asset missing")
	logger.Warn().
		Err(out.LastErr).
		Str(log.FieldEvent, "asset.fetch.exhausted").
		Int(log.FieldAttempt, out.Attempts).
		Int(log.FieldStatus, out.LastStatus).
		Dur(log.FieldDuration, out.Duration).
		Msg("asset fetch gave up, continuing without asset")
	return out
}

func (f *Fetcher) attempt(ctx context.Context, tracer trace.Tracer, url string, auth Auth, sink Sink, key Key, attempt int) (location string, status int, err error) {
	attemptCtx, span := tracer.Start(ctx, "testgen.asset.fetch.attempt", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int(telemetry.AssetAttemptKey, attempt),
		attribute.Bool("retry", attempt > 1),
	)
	start := time.Now()
	defer func() {
		metrics.RecordFetchAttempt(metrics.StatusClass(err, status), time.Since(start))
		span.SetAttributes(attribute.Int(telemetry.HTTPStatusCodeKey, status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if f.limiter != nil {
		if err := f.limiter.Wait(attemptCtx); err != nil {
			return "", 0, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if auth.Username != "" || auth.Password != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	status = resp.StatusCode
	switch {
	case status == http.StatusNotFound:
		return "", status, errNotReady
	case status < 200 || status > 299:
		return "", status, fmt.Errorf("unexpected status %d", status)
	}

	body := bufio.NewReader(resp.Body)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return "", status, errEmptyBody
		}
		return "", status, fmt.Errorf("read body: %w", err)
	}

	location, err = sink.Write(attemptCtx, key, body)
	if err != nil {
		return "", status, fmt.Errorf("sink: %w", err)
	}
	return location, status, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
