// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate provides a small field validator that accumulates errors
// instead of failing on the first one.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Error describes a single failed field check.
type Error struct {
	Field   string
	Message string
	Value   interface{}
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError is returned by Validator.Err and holds every failed check.
type ValidationError struct {
	Errors []Error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validator accumulates field errors.
type Validator struct {
	errors []Error
}

// New creates an empty validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a failed check for field.
func (v *Validator) AddError(field, message string, value interface{}) {
	v.errors = append(v.errors, Error{Field: field, Message: message, Value: value})
}

// IsValid reports whether no check has failed so far.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns a copy of the accumulated errors.
func (v *Validator) Errors() []Error {
	out := make([]Error, len(v.errors))
	copy(out, v.errors)
	return out
}

// Err returns nil when valid, otherwise a *ValidationError.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return &ValidationError{Errors: v.Errors()}
}

// URL validates that value parses as an absolute URL with a host and one of
// the allowed schemes.
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL syntax: %v", err), value)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(allowedSchemes) == 0 {
		return
	}
	for _, s := range allowedSchemes {
		if strings.EqualFold(u.Scheme, s) {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("unsupported scheme %q (allowed: %v)", u.Scheme, allowedSchemes), value)
}

// ListenAddr validates a host:port listen address. Empty is allowed and means disabled.
func (v *Validator) ListenAddr(field, value string) {
	if value == "" {
		return
	}
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), value)
		return
	}
	if port == "" {
		v.AddError(field, "listen address must include a port", value)
	}
}

// NotEmpty validates that a string is not blank.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf validates that a value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
}

// Positive validates that a number is > 0.
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// NonNegative validates that a number is >= 0.
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

// Range validates min <= value <= max.
func (v *Validator) Range(field string, value, min, max float64) {
	if value < min || value > max {
		v.AddError(field, fmt.Sprintf("value must be between %g and %g, got %g", min, max, value), value)
	}
}

// MinDuration validates that d is at least min.
func (v *Validator) MinDuration(field string, d, min time.Duration) {
	if d < min {
		v.AddError(field, fmt.Sprintf("duration must be at least %s, got %s", min, d), d)
	}
}
