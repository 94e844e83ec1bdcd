// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package ghclient

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// powerBackOff implements backoff.BackOff with the fixed base^attempt
// exponential law the retry contract pins down exactly (spec.md §4.4),
// rather than backoff.ExponentialBackOff's defaults, which add a
// randomization factor and a max-elapsed-time cutoff that would
// perturb the bare power law.
type powerBackOff struct {
	base    float64
	attempt int
}

func newPowerBackOff(base float64) *powerBackOff {
	return &powerBackOff{base: base}
}

// NextBackOff returns base^attempt seconds and advances the internal
// attempt counter, so the Nth call (0-indexed) yields the Nth retry's
// wait.
func (p *powerBackOff) NextBackOff() time.Duration {
	wait := time.Duration(math.Pow(p.base, float64(p.attempt)) * float64(time.Second))
	p.attempt++
	return wait
}

// Reset restarts the power-law sequence at base^0.
func (p *powerBackOff) Reset() {
	p.attempt = 0
}

var _ backoff.BackOff = (*powerBackOff)(nil)
