// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ghcerr defines the error taxonomy surfaced at the boundary of
// the GitHub client core: a sentinel error per kind so callers can use
// errors.Is, plus a structured *APIError carrying the HTTP status and
// parsed response body so callers can log or display a precise cause.
//
// The classification switch in StatusToKind mirrors
// internal/engine/errors.HTTPErrorCodeToErr's sentinel-plus-wrapped-
// struct shape.
package ghcerr

import (
	"errors"
	"fmt"
	"regexp"
)

// rateLimitMessage matches GitHub's "API rate limit exceeded" style
// 403 bodies, case-insensitively.
var rateLimitMessage = regexp.MustCompile(`(?i)rate limit`)

// Kind identifies which branch of the error taxonomy an error belongs
// to, independent of its Go type.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "rate_limit"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindServer         Kind = "server"
	KindConnection     Kind = "connection"
	KindTimeout        Kind = "timeout"
	KindGeneric        Kind = "generic"
)

// Sentinel errors, one per Kind, so callers can test with errors.Is
// without needing to know the concrete wrapping type.
var (
	ErrAuthentication = errors.New("github: authentication error")
	ErrRateLimit      = errors.New("github: rate limit error")
	ErrNotFound       = errors.New("github: not found")
	ErrValidation     = errors.New("github: validation error")
	ErrServer         = errors.New("github: server error")
	ErrConnection     = errors.New("github: connection error")
	ErrTimeout        = errors.New("github: timeout")
	ErrGeneric        = errors.New("github: request error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindAuthentication:
		return ErrAuthentication
	case KindRateLimit:
		return ErrRateLimit
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindServer:
		return ErrServer
	case KindConnection:
		return ErrConnection
	case KindTimeout:
		return ErrTimeout
	default:
		return ErrGeneric
	}
}

// APIError is the structured error surfaced to callers for any failed
// API call: it carries enough of the response to let a higher layer
// log or display a precise cause, per spec ("every error variant
// carries enough structured data").
type APIError struct {
	Kind       Kind
	StatusCode int
	Body       map[string]any
	Msg        string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap lets errors.Is(err, ErrNotFound) etc. work against a wrapping
// *APIError without the caller needing the concrete type.
func (e *APIError) Unwrap() error {
	return sentinelFor(e.Kind)
}

// NewAPIError constructs an APIError, defaulting Body to an empty map
// so callers never nil-deref it.
func NewAPIError(kind Kind, statusCode int, msg string, body map[string]any) *APIError {
	if body == nil {
		body = map[string]any{}
	}
	return &APIError{Kind: kind, StatusCode: statusCode, Body: body, Msg: msg}
}

// RateLimitError is an APIError augmented with the rate-limit hints
// GitHub returns on a 403 "rate limit exceeded" response: reset
// instant, remaining, and limit. Callers are expected to decide
// whether to wait on Reset and retry at the application layer — the
// pipeline never retries a RateLimitError itself.
type RateLimitError struct {
	*APIError
	Reset     int64 // unix seconds
	Remaining int
	Limit     int
	// Wait is the wait duration the governor computed, capped at
	// MaxRetryWait.
	Wait int64 // seconds
}

// Unwrap returns the embedded *APIError so errors.As(err, &apiErr)
// succeeds on a *RateLimitError; APIError.Unwrap then continues the
// chain to the KindRateLimit sentinel.
func (e *RateLimitError) Unwrap() error {
	return e.APIError
}

// NewRateLimitError builds a RateLimitError with Kind already set to
// KindRateLimit.
func NewRateLimitError(msg string, reset int64, remaining, limit int, waitSeconds int64) *RateLimitError {
	return &RateLimitError{
		APIError:  NewAPIError(KindRateLimit, 403, msg, nil),
		Reset:     reset,
		Remaining: remaining,
		Limit:     limit,
		Wait:      waitSeconds,
	}
}

// StatusToKind classifies an HTTP status code into a Kind. Message is
// consulted only to distinguish a rate-limit-bearing 403 from a plain
// authentication 403; pass "" if unavailable.
func StatusToKind(statusCode int, message string) Kind {
	switch {
	case statusCode == 401:
		return KindAuthentication
	case statusCode == 403:
		if rateLimitMessage.MatchString(message) {
			return KindRateLimit
		}
		return KindAuthentication
	case statusCode == 404:
		return KindNotFound
	case statusCode == 422:
		return KindValidation
	case statusCode >= 500 && statusCode < 600:
		return KindServer
	case statusCode >= 200 && statusCode < 300:
		return ""
	default:
		return KindGeneric
	}
}

// CountsAsBreakerFailure reports whether a request outcome with this
// error should advance the circuit breaker's failure counter: only
// transport failures, timeouts, and 5xx responses count.
func CountsAsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == KindServer || apiErr.Kind == KindConnection || apiErr.Kind == KindTimeout
	}
	// A non-APIError means transport failure or timeout — both count.
	return true
}
