// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package ghclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsewatch/ghcore/pkg/ghclient/checkruns"
	"github.com/pulsewatch/ghcore/pkg/ghclient/pagination"
)

// CheckRunFetcher adapts a *Client to checkruns.PageFetcher, fetching
// one page of /repos/{owner}/{repo}/commits/{sha}/check-runs and
// unwrapping its {total_count, check_runs: [...]} envelope — the
// check-runs endpoint's body is an object, not a bare array, so it
// cannot go through Client.FetchPage (spec.md §4.6's note that the
// paginator itself stays payload-shape-agnostic).
type CheckRunFetcher struct {
	client *Client
}

// NewCheckRunFetcher wraps client for use by a checkruns.Discoverer.
func NewCheckRunFetcher(client *Client) *CheckRunFetcher {
	return &CheckRunFetcher{client: client}
}

// FetchCheckRunPage implements checkruns.PageFetcher.
func (f *CheckRunFetcher) FetchCheckRunPage(ctx context.Context, owner, repo, sha string, page int) ([]map[string]any, bool, error) {
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs", owner, repo, sha)
	query := url.Values{
		"per_page": {"100"},
		"page":     {strconv.Itoa(page)},
	}

	reqURL, err := f.client.resolveURL(path)
	if err != nil {
		return nil, false, err
	}

	correlationID := newCorrelationID()
	logger := zerolog.Ctx(ctx).With().Str("correlation_id", correlationID).Logger()

	retryBackoff := newPowerBackOff(f.client.config.RetryBackoffBase)

	var lastErr error
	for attempt := 0; attempt <= f.client.config.MaxRetries; attempt++ {
		outcome := f.client.attempt(ctx, "GET", withQuery(reqURL, query), nil, correlationID, logger, nil)
		if outcome.err == nil {
			body, decodeErr := decodeBody(outcome.response, outcome.body)
			if decodeErr != nil {
				return nil, false, decodeErr
			}

			runsRaw, _ := body["check_runs"].([]any)
			runs := make([]map[string]any, 0, len(runsRaw))
			for _, item := range runsRaw {
				if m, ok := item.(map[string]any); ok {
					runs = append(runs, m)
				}
			}

			hasNext := pagination.ParseLinkHeader(outcome.response.Header.Get("Link")).HasNext()
			return runs, hasNext, nil
		}
		if !outcome.retryable {
			return nil, false, outcome.err
		}
		lastErr = outcome.err
		if attempt < f.client.config.MaxRetries {
			time.Sleep(retryBackoff.NextBackOff())
		}
	}
	return nil, false, lastErr
}

var _ checkruns.PageFetcher = (*CheckRunFetcher)(nil)
