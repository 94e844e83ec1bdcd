// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/pulsewatch/ghcore/pkg/ghclient/ghcerr"
)

// appAssertionSkew is how far into the past "iat" is backdated, to
// tolerate modest clock drift between this process and GitHub.
const appAssertionSkew = 60 * time.Second

// appAssertionTTL is how long the signed JWT claims it is valid for
// ("exp"), per GitHub App authentication rules (max 10 minutes).
const appAssertionTTL = 10 * time.Minute

// appCredentialTTL is how long the *cached* Credential is considered
// fresh before AppIdentityProvider signs a new assertion. It is longer
// than appAssertionTTL: a cached credential is reused for up to an
// hour even though the JWT inside it claims an "exp" ten minutes after
// signing.
const appCredentialTTL = time.Hour

// AppIdentityProvider authenticates as a GitHub App by signing a short
// assertion JWT with the App's RS256 private key, mirroring
// GitHubAppAuth in the Python original.
//
// It deliberately does NOT exchange the signed assertion for an
// installation access token — this preserves the original's "for now"
// simplification exactly, per spec.md §9's open question. Every
// produced Credential uses the JWT itself as the bearer token.
type AppIdentityProvider struct {
	appID      string
	privateKey *rsa.PrivateKey

	mu   sync.Mutex
	cred Credential
}

// NewAppIdentityProvider constructs a provider that signs assertions
// for the given App ID using privateKey.
func NewAppIdentityProvider(appID string, privateKey *rsa.PrivateKey) *AppIdentityProvider {
	return &AppIdentityProvider{appID: appID, privateKey: privateKey}
}

// CurrentCredential returns the cached credential if it has not yet
// reached appCredentialTTL, otherwise signs and caches a new one.
// Concurrent callers serialize on the internal mutex so only one
// assertion is signed per expiry window.
func (p *AppIdentityProvider) CurrentCredential(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cred.Token != "" && !p.cred.Expired() {
		return p.cred, nil
	}
	return p.refreshLocked()
}

// Refresh forces a new assertion to be signed regardless of the cached
// one's age.
func (p *AppIdentityProvider) Refresh(_ context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked()
}

func (p *AppIdentityProvider) refreshLocked() (Credential, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-appAssertionSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appAssertionTTL)),
		Issuer:    p.appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(p.privateKey)
	if err != nil {
		return Credential{}, ghcerr.NewAPIError(ghcerr.KindAuthentication, 0,
			fmt.Sprintf("failed to sign app identity assertion: %v", err), nil)
	}

	p.cred = Credential{
		Token:     signed,
		Scheme:    SchemeBearer,
		ExpiresAt: now.Add(appCredentialTTL),
	}
	return p.cred, nil
}

// Valid reports whether a cached, unexpired credential is held without
// forcing a new signature.
func (p *AppIdentityProvider) Valid(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred.Token != "" && !p.cred.Expired()
}

var _ Provider = (*AppIdentityProvider)(nil)
