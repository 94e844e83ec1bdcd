// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"github.com/pulsewatch/ghcore/pkg/ghclient/ghcerr"
)

// StaticTokenProvider serves a single personal-access-token credential
// that never expires and never needs refreshing, mirroring
// PersonalAccessTokenAuth in the Python original.
type StaticTokenProvider struct {
	cred Credential
}

// NewStaticTokenProvider constructs a provider around a personal
// access token. Construction fails with an authentication error if the
// token is empty.
func NewStaticTokenProvider(token string) (*StaticTokenProvider, error) {
	if token == "" {
		return nil, ghcerr.NewAPIError(ghcerr.KindAuthentication, 0, "personal access token is required", nil)
	}
	return &StaticTokenProvider{cred: Credential{Token: token, Scheme: SchemeToken}}, nil
}

// CurrentCredential always returns the configured token.
func (p *StaticTokenProvider) CurrentCredential(_ context.Context) (Credential, error) {
	return p.cred, nil
}

// Refresh is a no-op for static tokens; it returns the same credential.
func (p *StaticTokenProvider) Refresh(_ context.Context) (Credential, error) {
	return p.cred, nil
}

// Valid always reports true for a static token.
func (p *StaticTokenProvider) Valid(_ context.Context) bool {
	return true
}

var _ Provider = (*StaticTokenProvider)(nil)
