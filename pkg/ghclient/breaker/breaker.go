// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package breaker isolates the pipeline from a misbehaving upstream by
// tripping after a run of consecutive failures and short-circuiting
// further attempts during a cooldown.
//
// It is grounded in the Python original's CircuitBreaker
// (src/github/client.py) and wraps
// github.com/sony/gobreaker's TwoStepCircuitBreaker, whose Allow/done
// two-step protocol maps directly onto that class's
// can_attempt/record_success/record_failure contract: gobreaker's own
// ConsecutiveFailures counter and Timeout-gated open-to-half-open
// transition already implement the required state machine, so this
// package is mostly naming and cooldown reporting on top of it.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors the three states in spec.md §3/§4.3.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// DefaultFailureThreshold and DefaultRecoveryTimeout match spec.md §3's
// defaults.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Breaker wraps a two-step circuit breaker and additionally tracks the
// instant it last tripped open, so callers can report the remaining
// cooldown in error messages (spec.md §6).
type Breaker struct {
	tb              *gobreaker.TwoStepCircuitBreaker
	recoveryTimeout time.Duration

	mu       sync.Mutex
	openedAt time.Time
}

// New constructs a Breaker that opens after failureThreshold consecutive
// recorded failures and allows a retry attempt recoveryTimeout after the
// last one.
func New(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	b := &Breaker{recoveryTimeout: recoveryTimeout}

	b.tb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        "github-client",
		MaxRequests: 1,
		Interval:    0, // never clear Counts while closed; only a success resets it
		Timeout:     recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold)
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if to == gobreaker.StateOpen {
				b.openedAt = time.Now()
			}
		},
	})

	return b
}

// Attempt is the outcome of a single CanAttempt/record round trip; the
// caller must call exactly one of RecordSuccess or RecordFailure once
// the underlying request has settled, or call Abandon if it never ran
// (e.g. the caller's context was cancelled before dispatch).
type Attempt struct {
	done func(success bool)
}

// RecordSuccess reports the guarded call succeeded; per spec.md §4.3
// this resets the consecutive-failure counter and, from open or
// half-open, closes the breaker.
func (a *Attempt) RecordSuccess() {
	a.done(true)
}

// RecordFailure reports the guarded call failed with a
// breaker-countable error (transport failure, timeout, or 5xx — see
// ghcerr.CountsAsBreakerFailure). It advances the consecutive-failure
// counter and may trip the breaker open.
func (a *Attempt) RecordFailure() {
	a.done(false)
}

// Abandon releases the attempt without recording a failure, for use
// when the call never actually reached the network (e.g. cancellation)
// — spec.md §5 requires cancellation not be treated as a server fault.
//
// It still must complete the underlying two-step transaction: Allow
// already consumed the breaker's single half-open probe slot (or
// incremented Counts.Requests while closed), and gobreaker never
// expires a half-open generation on its own — an attempt that is
// never completed via done leaves the breaker permanently unable to
// grant another probe. It therefore completes with success: an
// abandoned attempt is never counted as a failure, but it does reset
// the consecutive-failure counter and, from half-open, closes the
// breaker, just as RecordSuccess does.
func (a *Attempt) Abandon() {
	a.done(true)
}

// ErrOpen is returned by CanAttempt while the breaker is open or while
// a half-open attempt is already outstanding.
var ErrOpen = errors.New("breaker: open")

// CanAttempt is the pre-dispatch gate (C3.can_attempt in spec.md §4.3).
// It returns an *Attempt to report the outcome on, or ErrOpen together
// with the remaining cooldown if the breaker is not letting calls
// through.
func (b *Breaker) CanAttempt() (*Attempt, error) {
	done, err := b.tb.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: retry after %s", ErrOpen, b.WaitDuration())
	}
	return &Attempt{done: done}, nil
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	return fromGobreakerState(b.tb.State())
}

// WaitDuration returns the remaining cooldown before a half-open probe
// is allowed; zero when the breaker is not open.
func (b *Breaker) WaitDuration() time.Duration {
	b.mu.Lock()
	openedAt := b.openedAt
	b.mu.Unlock()

	if b.State() != StateOpen || openedAt.IsZero() {
		return 0
	}
	remaining := b.recoveryTimeout - time.Since(openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Counts exposes the underlying request/failure tallies for
// diagnostics and tests.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.tb.Counts()
}
