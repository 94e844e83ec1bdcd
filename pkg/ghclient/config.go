// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package ghclient

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// ClientConfig is the caller-supplied configuration for a Client.
// DefaultConfig returns a fully populated value; zero-valued fields of
// a config built by hand are not filled in. Callers embedding this in a
// larger mapstructure-decoded configuration tree can rely on the same
// `mapstructure` tags for YAML/env binding that internal/engine/
// ingester/git.Config uses for its own config struct.
type ClientConfig struct {
	BaseURL               string        `mapstructure:"base_url" validate:"required,url"`
	Timeout               time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	MaxRetries            int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoffBase      float64       `mapstructure:"retry_backoff_base" validate:"gt=1"`
	RateLimitBuffer       int           `mapstructure:"rate_limit_buffer" validate:"gte=0"`
	UserAgent             string        `mapstructure:"user_agent" validate:"required"`
	MaxConcurrentRequests int64         `mapstructure:"max_concurrent_requests" validate:"required,gt=0"`
	FailureThreshold      int           `mapstructure:"failure_threshold" validate:"required,gt=0"`
	RecoveryTimeout       time.Duration `mapstructure:"recovery_timeout" validate:"required,gt=0"`
}

// DefaultConfig returns the configuration defaults named in spec.md §3:
// base URL "https://api.github.com", a 30s per-request timeout, up to
// 3 retries with a backoff base of 2.0, a rate-limit buffer of 100, and
// up to 10 concurrent in-flight requests.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL:               "https://api.github.com",
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		RetryBackoffBase:      2.0,
		RateLimitBuffer:       100,
		UserAgent:             "pulsewatch-ghcore",
		MaxConcurrentRequests: 10,
		FailureThreshold:      5,
		RecoveryTimeout:       60 * time.Second,
	}
}

var configValidator = validator.New()

// Validate reports any field that fails its validation tag.
func (c ClientConfig) Validate() error {
	return configValidator.Struct(c)
}
