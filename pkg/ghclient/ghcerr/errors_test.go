// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package ghcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusToKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		message string
		want    Kind
	}{
		{"unauthorized", 401, "", KindAuthentication},
		{"rate limit by message", 403, "API rate limit exceeded", KindRateLimit},
		{"rate limit case insensitive", 403, "RATE LIMIT hit", KindRateLimit},
		{"forbidden without rate limit text", 403, "access denied", KindAuthentication},
		{"not found", 404, "", KindNotFound},
		{"validation", 422, "", KindValidation},
		{"server error", 503, "", KindServer},
		{"success", 204, "", ""},
		{"unmapped", 418, "", KindGeneric},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusToKind(tt.status, tt.message))
		})
	}
}

func TestAPIErrorIsSentinel(t *testing.T) {
	t.Parallel()

	err := NewAPIError(KindNotFound, 404, "no such repo", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrServer)
}

func TestRateLimitErrorUnwrapsThroughAPIError(t *testing.T) {
	t.Parallel()

	err := NewRateLimitError("API rate limit exceeded", 1700000000, 0, 5000, 42)

	assert.ErrorIs(t, err, ErrRateLimit)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindRateLimit, apiErr.Kind)
	assert.Equal(t, 403, apiErr.StatusCode)

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.EqualValues(t, 1700000000, rlErr.Reset)
	assert.EqualValues(t, 42, rlErr.Wait)
}

func TestAPIErrorWrappedByFmtErrorfStillUnwraps(t *testing.T) {
	t.Parallel()

	inner := NewAPIError(KindServer, 503, "upstream unavailable", nil)
	wrapped := fmt.Errorf("request failed: %w", inner)

	assert.ErrorIs(t, wrapped, ErrServer)
}

func TestCountsAsBreakerFailure(t *testing.T) {
	t.Parallel()

	assert.False(t, CountsAsBreakerFailure(nil))
	assert.True(t, CountsAsBreakerFailure(NewAPIError(KindServer, 500, "boom", nil)))
	assert.False(t, CountsAsBreakerFailure(NewAPIError(KindNotFound, 404, "missing", nil)))
	assert.True(t, CountsAsBreakerFailure(errors.New("connection reset")))
}
