// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit tracks GitHub's per-resource hourly quota from
// response headers and gates dispatch before it is exhausted.
//
// It is grounded in src/github/rate_limiting.py's RateLimitManager,
// reimplemented with a lock-free concurrent map
// (github.com/puzpuzpuz/xsync/v3) in place of the original's
// per-resource asyncio.Lock dict, since Go callers race on the same
// map from many goroutines rather than cooperatively scheduled tasks.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/pulsewatch/ghcore/pkg/ghclient/ghcerr"
)

// DefaultResource is used whenever a response or caller does not name
// a specific resource class.
const DefaultResource = "core"

// DefaultBuffer is the default rate-limit buffer.
const DefaultBuffer = 100

// DefaultMaxRetryWait caps how long a RateLimitError reports waiting
// for, even if the server's reset is further out.
const DefaultMaxRetryWait = time.Hour

// Snapshot is the most recently observed rate-limit state for one
// resource class.
type Snapshot struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Used      int
	Resource  string
}

// SecondsUntilReset is never negative.
func (s Snapshot) SecondsUntilReset() float64 {
	d := time.Until(s.Reset).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// Exceeded reports whether the resource's quota has been used up.
func (s Snapshot) Exceeded() bool {
	return s.Remaining <= 0
}

// UsagePercentage returns the fraction of the limit consumed, as a
// percentage in [0, 100]. A zero Limit reports 0 rather than dividing
// by zero.
func (s Snapshot) UsagePercentage() float64 {
	if s.Limit == 0 {
		return 0
	}
	return float64(s.Limit-s.Remaining) / float64(s.Limit) * 100
}

// Governor maintains one Snapshot per resource class and gates
// dispatch before the quota is exhausted.
type Governor struct {
	snapshots *xsync.MapOf[string, Snapshot]

	Buffer          int
	RetryAfterReset bool
	MaxRetryWait    time.Duration
}

// NewGovernor constructs a Governor with the given buffer. Pass
// DefaultBuffer for a sensible default. RetryAfterReset defaults to
// true and MaxRetryWait to DefaultMaxRetryWait.
func NewGovernor(buffer int) *Governor {
	return &Governor{
		snapshots:       xsync.NewMapOf[string, Snapshot](),
		Buffer:          buffer,
		RetryAfterReset: true,
		MaxRetryWait:    DefaultMaxRetryWait,
	}
}

// Snapshot returns the most recently recorded state for resource, if
// any has been observed yet.
func (g *Governor) Snapshot(resource string) (Snapshot, bool) {
	return g.snapshots.Load(resource)
}

// UpdateFromHeaders records a new Snapshot from an HTTP response's
// rate-limit headers. It is a no-op when X-RateLimit-Limit is absent,
// and discards the entire update if any field fails to parse as an
// integer. Writes are atomic per-resource: a concurrent
// reader observes either the old or the new Snapshot in full, never a
// torn one.
func (g *Governor) UpdateFromHeaders(h http.Header) {
	limitStr := h.Get("X-RateLimit-Limit")
	if limitStr == "" {
		return
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return
	}
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}
	used, err := strconv.Atoi(h.Get("X-RateLimit-Used"))
	if err != nil {
		return
	}

	resource := h.Get("X-RateLimit-Resource")
	if resource == "" {
		resource = DefaultResource
	}

	g.snapshots.Store(resource, Snapshot{
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Unix(reset, 0),
		Used:      used,
		Resource:  resource,
	})
}

// Check is the pre-dispatch gate: it permits the call unless the
// buffer has been breached and a reset is still pending, in which case
// it fails with a *ghcerr.RateLimitError carrying the wait hint.
func (g *Governor) Check(resource string) error {
	snap, ok := g.snapshots.Load(resource)
	if !ok {
		return nil
	}
	if snap.Remaining > g.Buffer {
		return nil
	}

	secondsLeft := snap.SecondsUntilReset()
	if !g.RetryAfterReset || secondsLeft <= 0 {
		return nil
	}

	wait := secondsLeft
	if maxWait := g.MaxRetryWait.Seconds(); wait > maxWait {
		wait = maxWait
	}

	return ghcerr.NewRateLimitError(
		"rate limit approaching for "+resource,
		snap.Reset.Unix(),
		snap.Remaining,
		snap.Limit,
		int64(wait),
	)
}

// ShouldBackoff reports whether usage for resource exceeds 80%. It is
// an auxiliary query; the pipeline itself only consults
// Check.
func (g *Governor) ShouldBackoff(resource string) bool {
	snap, ok := g.snapshots.Load(resource)
	if !ok {
		return false
	}
	return snap.UsagePercentage() > 80
}

// BackoffDuration computes a suggested backoff for resource on a
// staircase: 0 below 80%, 1s at 80-89%, 5s at 90-94%,
// and above 95% a duration that grows with time-to-reset, capped at
// 30s.
func (g *Governor) BackoffDuration(resource string) time.Duration {
	snap, ok := g.snapshots.Load(resource)
	if !ok {
		return 0
	}

	usage := snap.UsagePercentage()
	switch {
	case usage < 80:
		return 0
	case usage < 90:
		return time.Second
	case usage < 95:
		return 5 * time.Second
	default:
		d := time.Duration(snap.SecondsUntilReset()/10) * time.Second
		if d > 30*time.Second {
			d = 30 * time.Second
		}
		return d
	}
}

// WaitForReset calls sleep once with the time left until resource's
// rate limit window resets, plus one second, capped at MaxRetryWait.
// It takes no context and has no cancellation of its own; how the
// wait is performed is up to sleep. It returns immediately if no
// snapshot is recorded or the resource is not currently exceeded. This is additive operational-visibility
// behaviour carried over from rate_limiting.py's wait_for_reset — the
// client itself never calls it; it fails eagerly instead.
func (g *Governor) WaitForReset(resource string, sleep func(time.Duration)) {
	snap, ok := g.snapshots.Load(resource)
	if !ok || !snap.Exceeded() {
		return
	}

	wait := snap.SecondsUntilReset() + 1
	if maxWait := g.MaxRetryWait.Seconds(); wait > maxWait {
		wait = maxWait
	}
	if wait > 0 {
		sleep(time.Duration(wait * float64(time.Second)))
	}
}
