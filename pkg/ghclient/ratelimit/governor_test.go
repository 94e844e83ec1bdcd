// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/ghcore/pkg/ghclient/ghcerr"
)

func headersAt(limit, remaining int, reset time.Time, used int) http.Header {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	h.Set("X-RateLimit-Used", strconv.Itoa(used))
	return h
}

func TestUpdateFromHeadersStoresSnapshot(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	reset := time.Now().Add(time.Hour).Truncate(time.Second)
	h := headersAt(5000, 4900, reset, 100)
	h.Set("X-RateLimit-Resource", "search")

	g.UpdateFromHeaders(h)

	snap, ok := g.Snapshot("search")
	require.True(t, ok)
	assert.Equal(t, 5000, snap.Limit)
	assert.Equal(t, 4900, snap.Remaining)
	assert.Equal(t, 100, snap.Used)
	assert.Equal(t, reset.Unix(), snap.Reset.Unix())
}

func TestUpdateFromHeadersDefaultsResourceToCore(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	g.UpdateFromHeaders(headersAt(60, 59, time.Now().Add(time.Minute), 1))

	_, ok := g.Snapshot(DefaultResource)
	assert.True(t, ok)
}

func TestUpdateFromHeadersNoOpWithoutLimitHeader(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	g.UpdateFromHeaders(http.Header{})

	_, ok := g.Snapshot(DefaultResource)
	assert.False(t, ok)
}

func TestUpdateFromHeadersNoOpOnMalformedField(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "not-a-number")
	h.Set("X-RateLimit-Remaining", "10")
	h.Set("X-RateLimit-Reset", "10")
	h.Set("X-RateLimit-Used", "0")

	g.UpdateFromHeaders(h)

	_, ok := g.Snapshot(DefaultResource)
	assert.False(t, ok, "a malformed field must discard the entire update")
}

func TestCheckPermitsWhenNoSnapshotObserved(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	assert.NoError(t, g.Check(DefaultResource))
}

func TestCheckPermitsAboveBuffer(t *testing.T) {
	t.Parallel()

	g := NewGovernor(100)
	g.UpdateFromHeaders(headersAt(5000, 500, time.Now().Add(time.Hour), 4500))
	assert.NoError(t, g.Check(DefaultResource))
}

func TestCheckFailsBelowBufferWithResetPending(t *testing.T) {
	t.Parallel()

	g := NewGovernor(100)
	reset := time.Now().Add(30 * time.Minute)
	g.UpdateFromHeaders(headersAt(5000, 50, reset, 4950))

	err := g.Check(DefaultResource)
	require.Error(t, err)

	var rlErr *ghcerr.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 50, rlErr.Remaining)
	assert.Equal(t, 5000, rlErr.Limit)
	assert.True(t, rlErr.Wait > 0)

	var apiErr *ghcerr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ghcerr.KindRateLimit, apiErr.Kind)
}

func TestCheckPermitsWhenResetAlreadyPassed(t *testing.T) {
	t.Parallel()

	g := NewGovernor(100)
	g.UpdateFromHeaders(headersAt(5000, 10, time.Now().Add(-time.Minute), 4990))
	assert.NoError(t, g.Check(DefaultResource))
}

func TestShouldBackoffThresholds(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	reset := time.Now().Add(time.Hour)

	g.UpdateFromHeaders(headersAt(100, 50, reset, 50))
	assert.False(t, g.ShouldBackoff(DefaultResource))

	g.UpdateFromHeaders(headersAt(100, 10, reset, 90))
	assert.True(t, g.ShouldBackoff(DefaultResource))
}

func TestBackoffDurationStaircase(t *testing.T) {
	t.Parallel()

	reset := time.Now().Add(time.Hour)

	tests := []struct {
		name      string
		remaining int
		want      time.Duration
	}{
		{"below 80%", 50, 0},
		{"80-89%", 15, time.Second},
		{"90-94%", 8, 5 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewGovernor(DefaultBuffer)
			g.UpdateFromHeaders(headersAt(100, tt.remaining, reset, 100-tt.remaining))
			assert.Equal(t, tt.want, g.BackoffDuration(DefaultResource))
		})
	}
}

func TestBackoffDurationCapsAtThirtySeconds(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	g.UpdateFromHeaders(headersAt(100, 1, time.Now().Add(2*time.Hour), 99))
	assert.Equal(t, 30*time.Second, g.BackoffDuration(DefaultResource))
}

func TestWaitForResetSkipsWhenNotExceeded(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	g.UpdateFromHeaders(headersAt(100, 50, time.Now().Add(time.Hour), 50))

	called := false
	g.WaitForReset(DefaultResource, func(time.Duration) { called = true })
	assert.False(t, called)
}

func TestWaitForResetSleepsUntilReset(t *testing.T) {
	t.Parallel()

	g := NewGovernor(DefaultBuffer)
	g.UpdateFromHeaders(headersAt(100, 0, time.Now().Add(200*time.Millisecond), 100))

	var slept time.Duration
	g.WaitForReset(DefaultResource, func(d time.Duration) { slept = d })
	assert.True(t, slept > 0)
}
