// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ghclient is a resilient GitHub REST API client core: it
// multiplexes concurrent callers over one shared transport, injects
// authentication, tracks rate-limit state from every response,
// retries bounded failures with backoff, and trips a circuit breaker
// on sustained trouble.
//
// It is grounded in the Python original's GitHubClient
// (src/github/client.py), reshaped around Go's goroutine-per-caller
// concurrency model: the aiohttp session + asyncio.Semaphore become a
// lazily-built *http.Client plus a golang.org/x/sync/semaphore.Weighted,
// and the per-call async context manager becomes a Close method with
// re-entrant lazy initialization.
package ghclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/pulsewatch/ghcore/pkg/ghclient/auth"
	"github.com/pulsewatch/ghcore/pkg/ghclient/breaker"
	"github.com/pulsewatch/ghcore/pkg/ghclient/ghcerr"
	"github.com/pulsewatch/ghcore/pkg/ghclient/pagination"
	"github.com/pulsewatch/ghcore/pkg/ghclient/ratelimit"
)

const acceptHeader = "application/vnd.github.v3+json"

// Client is a resilient, reusable GitHub REST API client (C4).
type Client struct {
	auth   auth.Provider
	config ClientConfig

	governor *ratelimit.Governor
	breaker  *breaker.Breaker
	sem      *semaphore.Weighted

	metrics *Metrics

	mu   sync.Mutex
	http *http.Client
}

// New constructs a Client. cfg's zero value fields are NOT defaulted —
// pass DefaultConfig() (optionally overridden) or your own fully
// populated ClientConfig.
func New(authProvider auth.Provider, cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	return &Client{
		auth:     authProvider,
		config:   cfg,
		governor: ratelimit.NewGovernor(cfg.RateLimitBuffer),
		breaker:  breaker.New(cfg.FailureThreshold, cfg.RecoveryTimeout),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		metrics:  newMetrics(),
	}, nil
}

// Governor exposes the rate-limit governor for callers (e.g. the
// ghcore-probe command) that need to inspect or pre-check quota state.
func (c *Client) Governor() *ratelimit.Governor { return c.governor }

// Breaker exposes the circuit breaker for diagnostics.
func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// ensureTransport lazily builds the underlying *http.Client, recreating
// it if Close was previously called — mirroring _ensure_session's
// "rebuild if closed" behaviour.
func (c *Client) ensureTransport() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http == nil {
		c.http = &http.Client{Timeout: c.config.Timeout}
	}
	return c.http
}

// Close releases the underlying transport's idle connections. The
// Client remains usable afterward: the next request lazily rebuilds
// the transport.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http != nil {
		c.http.CloseIdleConnections()
		c.http = nil
	}
}

func (c *Client) resolveURL(path string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String(), nil
}

// requestOutcome is everything a pre-condition/retry round decides
// based on one HTTP round trip.
type requestOutcome struct {
	response *http.Response
	body     []byte
	err      error
	// retryable is true when err is non-nil but the pipeline should
	// retry (transport failure, timeout, 5xx); false for a terminal
	// error the caller should see immediately.
	retryable bool
}

// do runs the full pre-condition chain, retry loop, and response
// classification for one logical call. It returns the decoded JSON
// body, or nil for a 204 No Content. headers, if non-nil, are merged
// onto the request after the default Accept/User-Agent/Authorization
// headers, so a caller can add to or override them per call.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body map[string]any, headers map[string]string) (map[string]any, error) {
	correlationID := newCorrelationID()
	logger := zerolog.Ctx(ctx).With().Str("correlation_id", correlationID).Logger()

	reqURL, err := c.resolveURL(path)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	retryBackoff := newPowerBackOff(c.config.RetryBackoffBase)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		outcome := c.attempt(ctx, method, reqURL, payload, correlationID, logger, headers)
		if outcome.err == nil {
			return decodeBody(outcome.response, outcome.body)
		}
		if !outcome.retryable {
			return nil, outcome.err
		}

		lastErr = outcome.err
		if attempt < c.config.MaxRetries {
			wait := retryBackoff.NextBackOff()
			logger.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("backoff", wait).
				Msg("github request failed, retrying")

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("github request failed after %d retries", c.config.MaxRetries)
	}
	return nil, lastErr
}

// attempt executes the pre-condition chain followed by exactly one
// HTTP round trip. headers, if non-nil, are additional request headers
// layered on top of the default ones.
func (c *Client) attempt(ctx context.Context, method, reqURL string, payload []byte, correlationID string, logger zerolog.Logger, headers map[string]string) requestOutcome {
	attemptToken, err := c.breaker.CanAttempt()
	if err != nil {
		return requestOutcome{err: ghcerr.NewAPIError(ghcerr.KindConnection, 0, err.Error(), nil)}
	}

	if err := c.governor.Check(ratelimit.DefaultResource); err != nil {
		attemptToken.Abandon()
		return requestOutcome{err: err}
	}

	cred, err := c.auth.CurrentCredential(ctx)
	if err != nil {
		attemptToken.Abandon()
		return requestOutcome{err: err}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		attemptToken.Abandon()
		return requestOutcome{err: ctx.Err(), retryable: false}
	}
	defer c.sem.Release(1)

	req, err := c.buildRequest(ctx, method, reqURL, payload, cred, headers)
	if err != nil {
		attemptToken.Abandon()
		return requestOutcome{err: err}
	}

	start := time.Now()
	logger.Debug().Str("method", method).Str("url", reqURL).Msg("github api request")

	resp, err := c.ensureTransport().Do(req)
	elapsed := time.Since(start)
	c.metrics.observeRequest(method, elapsed)

	if err != nil {
		if ctx.Err() != nil {
			// Cancellation unwinds without counting against the breaker
			// or the rate-limit governor.
			attemptToken.Abandon()
			return requestOutcome{err: ctx.Err()}
		}
		attemptToken.RecordFailure()
		c.metrics.observeBreakerState(c.breaker.State())
		kind := ghcerr.KindTimeout
		if netErr, ok := err.(interface{ Timeout() bool }); !ok || !netErr.Timeout() {
			kind = ghcerr.KindConnection
		}
		return requestOutcome{
			err:       ghcerr.NewAPIError(kind, 0, err.Error(), nil),
			retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		attemptToken.RecordFailure()
		return requestOutcome{
			err:       ghcerr.NewAPIError(ghcerr.KindConnection, resp.StatusCode, err.Error(), nil),
			retryable: true,
		}
	}

	c.governor.UpdateFromHeaders(resp.Header)
	c.metrics.observeRateLimit(c.governor)

	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("github api response")

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent {
		attemptToken.RecordSuccess()
		c.metrics.observeBreakerState(c.breaker.State())
		return requestOutcome{response: resp, body: respBody}
	}

	classified := c.classifyError(resp, respBody, correlationID, logger)
	if ghcerr.CountsAsBreakerFailure(classified) {
		attemptToken.RecordFailure()
	} else {
		attemptToken.RecordSuccess()
	}
	c.metrics.observeBreakerState(c.breaker.State())

	var apiErr *ghcerr.APIError
	retryable := false
	if errors.As(classified, &apiErr) && apiErr.Kind == ghcerr.KindServer {
		retryable = true
	}

	return requestOutcome{err: classified, retryable: retryable}
}

func (c *Client) buildRequest(ctx context.Context, method, reqURL string, payload []byte, cred auth.Credential, headers map[string]string) (*http.Request, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Authorization", cred.Header())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// classifyError turns a non-2xx response into the appropriate
// ghcerr variant.
func (c *Client) classifyError(resp *http.Response, respBody []byte, correlationID string, logger zerolog.Logger) error {
	var decoded map[string]any
	message := ""
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &decoded); err == nil {
			if msg, ok := decoded["message"].(string); ok {
				message = msg
			}
		} else {
			decoded = map[string]any{"message": string(respBody)}
			message = string(respBody)
		}
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	logger.Warn().Int("status", resp.StatusCode).Str("message", message).Msg("github api error")

	kind := ghcerr.StatusToKind(resp.StatusCode, message)
	if kind == ghcerr.KindRateLimit {
		return buildRateLimitError(resp, message)
	}
	if kind == "" {
		kind = ghcerr.KindGeneric
	}
	return ghcerr.NewAPIError(kind, resp.StatusCode, message, decoded)
}

func buildRateLimitError(resp *http.Response, message string) *ghcerr.RateLimitError {
	reset := parseIntHeader(resp.Header.Get("X-RateLimit-Reset"))
	remaining := int(parseIntHeader(resp.Header.Get("X-RateLimit-Remaining")))
	limit := int(parseIntHeader(resp.Header.Get("X-RateLimit-Limit")))
	return ghcerr.NewRateLimitError(message, reset, remaining, limit, 0)
}

func parseIntHeader(v string) int64 {
	var n int64
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}

func decodeBody(resp *http.Response, body []byte) (map[string]any, error) {
	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	return out, nil
}

// Get issues a GET request against path, which may be absolute or
// relative to the configured base URL. query and headers may be nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, headers map[string]string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, headers)
}

// Post issues a POST request with a JSON-encoded body. query and
// headers may be nil.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body map[string]any, headers map[string]string) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, path, query, body, headers)
}

// Put issues a PUT request with a JSON-encoded body. query and headers
// may be nil.
func (c *Client) Put(ctx context.Context, path string, query url.Values, body map[string]any, headers map[string]string) (map[string]any, error) {
	return c.do(ctx, http.MethodPut, path, query, body, headers)
}

// Delete issues a DELETE request. It returns a nil map for a 204
// response. query and headers may be nil.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, headers map[string]string) (map[string]any, error) {
	return c.do(ctx, http.MethodDelete, path, query, nil, headers)
}

// fetchPage performs one paginated GET and returns both the decoded
// item list and the raw response headers, so the pagination package
// can read the Link header itself.
func (c *Client) fetchPage(ctx context.Context, pageURL string, query url.Values) ([]any, http.Header, error) {
	correlationID := newCorrelationID()
	logger := zerolog.Ctx(ctx).With().Str("correlation_id", correlationID).Logger()

	retryBackoff := newPowerBackOff(c.config.RetryBackoffBase)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		outcome := c.attempt(ctx, http.MethodGet, withQuery(pageURL, query), nil, correlationID, logger, nil)
		if outcome.err == nil {
			var items []any
			if len(outcome.body) > 0 {
				if err := json.Unmarshal(outcome.body, &items); err != nil {
					return nil, nil, fmt.Errorf("decoding paginated response: %w", err)
				}
			}
			return items, outcome.response.Header, nil
		}
		if !outcome.retryable {
			return nil, nil, outcome.err
		}
		lastErr = outcome.err
		if attempt < c.config.MaxRetries {
			time.Sleep(retryBackoff.NextBackOff())
		}
	}
	return nil, nil, lastErr
}

func withQuery(rawURL string, query url.Values) string {
	if len(query) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + query.Encode()
}

// BaseURL returns the configured base URL, for callers that need to
// build an initial request URL.
func (c *Client) BaseURL() string { return c.config.BaseURL }

// FetchPage performs one paginated GET, satisfying
// pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, pageURL string, query url.Values) ([]any, http.Header, error) {
	return c.fetchPage(ctx, pageURL, query)
}

// Paginate builds a Paginator over a collection endpoint at path,
// resolved against the client's base URL.
func (c *Client) Paginate(path string, query url.Values, perPage, maxPages int) (*pagination.Paginator, error) {
	reqURL, err := c.resolveURL(path)
	if err != nil {
		return nil, err
	}
	return pagination.NewPaginator(c, reqURL, query, perPage, maxPages), nil
}
