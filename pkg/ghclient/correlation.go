// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package ghclient

import "github.com/google/uuid"

// newCorrelationID mints an 8-character diagnostic identifier attached
// to every request's log lines so a single call can be traced through
// retries. It is never sent to GitHub; it exists purely for local
// observability, mirroring the request-scoped correlation id the
// teacher attaches to webhook delivery logs.
func newCorrelationID() string {
	return uuid.NewString()[:8]
}
