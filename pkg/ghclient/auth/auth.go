// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth supplies bearer credentials to the request pipeline.
//
// It mirrors the polymorphic auth providers of the Python original
// (src/github/auth.py): a static personal-access-token provider and a
// GitHub App identity provider that signs short-lived JWT assertions.
// Neither provider talks to the network beyond, optionally, signing a
// token locally — credential storage and installation-token exchange
// are handled by callers, not here.
package auth

import (
	"context"
	"time"
)

// Scheme is the HTTP authentication scheme a Credential is presented
// under, e.g. "Authorization: <Scheme> <Token>".
type Scheme string

const (
	// SchemeToken is used by classic personal access tokens.
	SchemeToken Scheme = "token"
	// SchemeBearer is used by GitHub App installation/JWT credentials.
	SchemeBearer Scheme = "Bearer"
)

// Credential is an opaque bearer credential plus the metadata needed to
// inject it into a request and to know when it must be refreshed.
type Credential struct {
	Token  string
	Scheme Scheme
	// ExpiresAt is the absolute instant after which Token must not be
	// used. The zero value means the credential never expires.
	ExpiresAt time.Time
}

// Expired reports whether the credential's expiry instant has passed.
// A zero ExpiresAt never expires.
func (c Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Header renders the credential as the literal value of an
// Authorization header, "<scheme> <token>".
func (c Credential) Header() string {
	return string(c.Scheme) + " " + c.Token
}

// Provider produces and refreshes credentials for the request pipeline.
// Implementations must be safe for concurrent use: many callers may
// invoke CurrentCredential at once, and any internal refresh must be
// serialized so that only one new credential is minted per expiry
// window.
type Provider interface {
	// CurrentCredential returns a credential valid for immediate use,
	// refreshing internally if the cached one has expired.
	CurrentCredential(ctx context.Context) (Credential, error)
	// Refresh forces a new credential to be produced, bypassing any
	// cache.
	Refresh(ctx context.Context) (Credential, error)
	// Valid reports whether the provider currently holds a usable
	// credential, without forcing a refresh.
	Valid(ctx context.Context) bool
}
