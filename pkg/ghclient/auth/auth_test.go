// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token  string
		scheme Scheme
		want   string
	}{
		{token: "abc123", scheme: SchemeToken, want: "token abc123"},
		{token: "xyz789", scheme: SchemeBearer, want: "Bearer xyz789"},
	}

	for _, tt := range tests {
		cred := Credential{Token: tt.token, Scheme: tt.scheme}
		assert.Equal(t, tt.want, cred.Header())
	}
}

func TestCredentialExpired(t *testing.T) {
	t.Parallel()

	noExpiry := Credential{Token: "t"}
	assert.False(t, noExpiry.Expired())

	future := Credential{Token: "t", ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, future.Expired())

	past := Credential{Token: "t", ExpiresAt: time.Now().Add(-time.Hour)}
	assert.True(t, past.Expired())
}

func TestNewStaticTokenProviderRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewStaticTokenProvider("")
	require.Error(t, err)
}

func TestStaticTokenProviderAlwaysValid(t *testing.T) {
	t.Parallel()

	p, err := NewStaticTokenProvider("T")
	require.NoError(t, err)

	ctx := context.Background()
	cred, err := p.CurrentCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token T", cred.Header())
	assert.True(t, p.Valid(ctx))

	refreshed, err := p.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, cred, refreshed)
}

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestAppIdentityProviderSignsAssertion(t *testing.T) {
	t.Parallel()

	key := testRSAKey(t)
	p := NewAppIdentityProvider("12345", key)

	ctx := context.Background()
	cred, err := p.CurrentCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemeBearer, cred.Scheme)
	assert.True(t, strings.HasPrefix(cred.Header(), "Bearer "))
	assert.False(t, cred.Expired())
	assert.True(t, p.Valid(ctx))

	parsed, err := jwt.ParseWithClaims(cred.Token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	require.True(t, ok)
	assert.Equal(t, "12345", claims.Issuer)
	assert.True(t, claims.IssuedAt.Before(time.Now()))
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestAppIdentityProviderCachesUntilExpiry(t *testing.T) {
	t.Parallel()

	key := testRSAKey(t)
	p := NewAppIdentityProvider("1", key)

	ctx := context.Background()
	first, err := p.CurrentCredential(ctx)
	require.NoError(t, err)

	second, err := p.CurrentCredential(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token, "cached credential should be reused before its TTL elapses")

	third, err := p.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, third.Token, "Refresh must always mint a new assertion")
}

func TestAppIdentityProviderConcurrentRefreshIsSerialized(t *testing.T) {
	t.Parallel()

	key := testRSAKey(t)
	p := NewAppIdentityProvider("1", key)
	ctx := context.Background()

	const n = 50
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := p.CurrentCredential(ctx)
			require.NoError(t, err)
			tokens[i] = cred.Token
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, tokens[0], tokens[i], "all concurrent callers within one expiry window should observe the same signed assertion")
	}
}
