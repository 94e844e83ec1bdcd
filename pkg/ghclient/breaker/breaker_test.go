// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStartsClosed(t *testing.T) {
	t.Parallel()

	b := New(DefaultFailureThreshold, DefaultRecoveryTimeout)
	assert.Equal(t, StateClosed, b.State())

	attempt, err := b.CanAttempt()
	require.NoError(t, err)
	attempt.RecordSuccess()
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := New(2, time.Minute)

	for i := 0; i < 2; i++ {
		attempt, err := b.CanAttempt()
		require.NoError(t, err)
		attempt.RecordFailure()
	}

	assert.Equal(t, StateOpen, b.State())

	_, err := b.CanAttempt()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerSuccessResetsCounterBeforeThreshold(t *testing.T) {
	t.Parallel()

	b := New(3, time.Minute)

	attempt, err := b.CanAttempt()
	require.NoError(t, err)
	attempt.RecordFailure()

	attempt, err = b.CanAttempt()
	require.NoError(t, err)
	attempt.RecordSuccess()

	for i := 0; i < 2; i++ {
		attempt, err := b.CanAttempt()
		require.NoError(t, err)
		attempt.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State(), "the reset counter should not yet have reached the threshold")
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	t.Parallel()

	recoveryTimeout := 100 * time.Millisecond
	b := New(2, recoveryTimeout)

	for i := 0; i < 2; i++ {
		attempt, err := b.CanAttempt()
		require.NoError(t, err)
		attempt.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	_, err := b.CanAttempt()
	require.ErrorIs(t, err, ErrOpen)

	time.Sleep(recoveryTimeout + 20*time.Millisecond)

	attempt, err := b.CanAttempt()
	require.NoError(t, err, "a probe should be let through once the cooldown elapses")
	assert.Equal(t, StateHalfOpen, b.State())

	attempt.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	recoveryTimeout := 50 * time.Millisecond
	b := New(1, recoveryTimeout)

	attempt, err := b.CanAttempt()
	require.NoError(t, err)
	attempt.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(recoveryTimeout + 20*time.Millisecond)

	attempt, err = b.CanAttempt()
	require.NoError(t, err)
	attempt.RecordFailure()

	assert.Equal(t, StateOpen, b.State())
}

func TestAbandonDoesNotWedgeTheHalfOpenProbe(t *testing.T) {
	t.Parallel()

	recoveryTimeout := 50 * time.Millisecond
	b := New(1, recoveryTimeout)

	attempt, err := b.CanAttempt()
	require.NoError(t, err)
	attempt.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(recoveryTimeout + 20*time.Millisecond)

	// The first CanAttempt after the cooldown both flips the breaker to
	// half_open and consumes gobreaker's single allowed probe slot.
	// Abandoning it (e.g. because the governor or credential step
	// rejected the call before the network round trip) must still
	// complete that slot so the breaker is not stuck forever.
	attempt, err = b.CanAttempt()
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())
	attempt.Abandon()

	attempt, err = b.CanAttempt()
	require.NoError(t, err, "a second probe must be grantable after the first was abandoned")
	attempt.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestAbandonDoesNotCountAsFailure(t *testing.T) {
	t.Parallel()

	b := New(2, time.Minute)

	attempt, err := b.CanAttempt()
	require.NoError(t, err)
	attempt.Abandon()

	attempt, err = b.CanAttempt()
	require.NoError(t, err)
	attempt.Abandon()

	assert.Equal(t, StateClosed, b.State(), "abandoned attempts must never trip the breaker")
	assert.Equal(t, uint32(0), b.Counts().ConsecutiveFailures)
}

func TestWaitDurationReportsRemainingCooldown(t *testing.T) {
	t.Parallel()

	b := New(1, time.Second)
	assert.Equal(t, time.Duration(0), b.WaitDuration())

	attempt, err := b.CanAttempt()
	require.NoError(t, err)
	attempt.RecordFailure()

	wait := b.WaitDuration()
	assert.True(t, wait > 0 && wait <= time.Second)
}
