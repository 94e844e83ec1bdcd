// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkruns implements the batch check-run discoverer (C6): it
// discovers, for a set of pull-request stubs sharing a repository, the
// check runs attached to each stub's head commit, deduplicating work
// by commit SHA and caching per-commit results.
//
// It is grounded in the Python original's GitHubCheckDiscoverer
// (src/workers/discovery/check_discoverer.py).
package checkruns

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/pulsewatch/ghcore/pkg/ghclient/ghcerr"
)

// DefaultBatchSize and DefaultMaxConcurrent are sensible defaults.
const (
	DefaultBatchSize     = 10
	DefaultMaxConcurrent = 5
	checkRunsPerPage     = 100
	checkRunsPageCap     = 5
	hitCacheTTL          = 5 * time.Minute
	missCacheTTL         = 60 * time.Second
	interBatchDelay      = 100 * time.Millisecond
)

// PRStub is the minimal pull-request descriptor consumed by the
// batch discoverer.
type PRStub struct {
	ID      int64
	Number  int
	HeadSHA string
}

// CheckOutput is the optional structured output attached to a check
// run.
type CheckOutput struct {
	Title            *string
	Summary          *string
	Text             *string
	AnnotationsCount int
	AnnotationsURL   *string
}

// DiscoveredCheckRun is the converted, storage-ready representation of
// one server check-run object.
type DiscoveredCheckRun struct {
	ExternalID  string
	Name        string
	Status      string
	Conclusion  *string
	StartedAt   *time.Time
	CompletedAt *time.Time
	DetailsURL  *string
	Output      *CheckOutput
}

// Cache is the external per-commit check-run cache C6 depends on. It
// is deliberately minimal — get/set-with-ttl/clear — matching
// CacheStrategy in the Python original; a concrete implementation
// (e.g. Redis-backed) lives outside this module's scope.
type Cache interface {
	Get(ctx context.Context, key string) ([]DiscoveredCheckRun, bool, error)
	Set(ctx context.Context, key string, value []DiscoveredCheckRun, ttl time.Duration) error
	Clear(ctx context.Context, pattern string) error
}

// PageFetcher performs one paginated GET of the check-runs endpoint
// and returns the entries of that page's check_runs array, already
// unwrapped from the {total_count, check_runs} envelope, plus whether
// a next page exists.
type PageFetcher interface {
	FetchCheckRunPage(ctx context.Context, owner, repo, sha string, page int) (checkRuns []map[string]any, hasNext bool, err error)
}

// ErrInvalidRepositoryURL is returned when a repository URL cannot be
// parsed into an owner/name coordinate.
var ErrInvalidRepositoryURL = errors.New("checkruns: invalid repository URL")

// ParseRepositoryURL extracts (owner, name) from a GitHub repository
// URL, stripping a trailing ".git" suffix. It rejects URLs whose path
// has fewer than two segments.
func ParseRepositoryURL(repositoryURL string) (owner, name string, err error) {
	parsed, err := url.Parse(repositoryURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidRepositoryURL, err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepositoryURL, repositoryURL)
	}
	owner = parts[0]
	name = strings.TrimSuffix(parts[1], ".git")
	return owner, name, nil
}

func cacheKey(owner, name, sha string) string {
	return fmt.Sprintf("checks:%s:%s:%s", owner, name, sha)
}

// Discoverer serves batch check-run queries over a shared transport
// and cache (C6).
type Discoverer struct {
	fetcher       PageFetcher
	cache         Cache
	batchSize     int
	sem           *semaphore.Weighted
	maxConcurrent int64
}

// NewDiscoverer constructs a Discoverer. Pass DefaultBatchSize /
// DefaultMaxConcurrent for sensible defaults.
func NewDiscoverer(fetcher PageFetcher, cache Cache, batchSize int, maxConcurrent int64) *Discoverer {
	return &Discoverer{
		fetcher:       fetcher,
		cache:         cache,
		batchSize:     batchSize,
		sem:           semaphore.NewWeighted(maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// DiscoverChecks discovers check runs for a single PR stub.
func (d *Discoverer) DiscoverChecks(ctx context.Context, stub PRStub, repositoryURL string) ([]DiscoveredCheckRun, error) {
	owner, name, err := ParseRepositoryURL(repositoryURL)
	if err != nil {
		return nil, err
	}
	return d.fetchForSHA(ctx, owner, name, stub.HeadSHA)
}

// BatchDiscoverChecks discovers check runs for many PR stubs sharing a
// repository, deduplicating fetches by head SHA.
func (d *Discoverer) BatchDiscoverChecks(ctx context.Context, stubs []PRStub, repositoryURL string) (map[int][]DiscoveredCheckRun, error) {
	result := make(map[int][]DiscoveredCheckRun)
	if len(stubs) == 0 {
		return result, nil
	}

	owner, name, err := ParseRepositoryURL(repositoryURL)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "checkruns").Str("repo", owner+"/"+name).Logger()

	shaToStubs := map[string][]PRStub{}
	var shaOrder []string
	for _, s := range stubs {
		if _, ok := shaToStubs[s.HeadSHA]; !ok {
			shaOrder = append(shaOrder, s.HeadSHA)
		}
		shaToStubs[s.HeadSHA] = append(shaToStubs[s.HeadSHA], s)
	}

	logger.Info().Int("prs", len(stubs)).Int("unique_shas", len(shaOrder)).Msg("batch discovering check runs")

	shaToChecks := make(map[string][]DiscoveredCheckRun, len(shaOrder))

	for i := 0; i < len(shaOrder); i += d.batchSize {
		end := i + d.batchSize
		if end > len(shaOrder) {
			end = len(shaOrder)
		}
		batch := shaOrder[i:end]

		type outcome struct {
			sha    string
			checks []DiscoveredCheckRun
			err    error
		}
		results := make(chan outcome, len(batch))

		for _, sha := range batch {
			sha := sha
			go func() {
				checks, err := d.fetchForSHA(ctx, owner, name, sha)
				results <- outcome{sha: sha, checks: checks, err: err}
			}()
		}

		var rateLimitErr error
		for range batch {
			o := <-results
			if o.err != nil {
				var rlErr *ghcerr.RateLimitError
				if errors.As(o.err, &rlErr) {
					rateLimitErr = o.err
					continue
				}
				logger.Warn().Err(o.err).Str("sha", o.sha).Msg("error fetching checks for sha")
				shaToChecks[o.sha] = nil
				continue
			}
			shaToChecks[o.sha] = o.checks
		}
		if rateLimitErr != nil {
			return nil, rateLimitErr
		}

		if end < len(shaOrder) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interBatchDelay):
			}
		}
	}

	for sha, prs := range shaToStubs {
		checks := shaToChecks[sha]
		for _, stub := range prs {
			result[stub.Number] = copyChecks(checks)
		}
	}

	return result, nil
}

func copyChecks(in []DiscoveredCheckRun) []DiscoveredCheckRun {
	if in == nil {
		return nil
	}
	out := make([]DiscoveredCheckRun, len(in))
	copy(out, in)
	return out
}

// fetchForSHA fetches and caches the check runs for one commit SHA.
func (d *Discoverer) fetchForSHA(ctx context.Context, owner, name, sha string) ([]DiscoveredCheckRun, error) {
	key := cacheKey(owner, name, sha)

	if cached, ok, err := d.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	var checks []DiscoveredCheckRun
	page := 1
	for page <= checkRunsPageCap {
		bodies, hasNext, err := d.fetcher.FetchCheckRunPage(ctx, owner, name, sha, page)
		if err != nil {
			var apiErr *ghcerr.APIError
			var rlErr *ghcerr.RateLimitError
			switch {
			case errors.As(err, &rlErr):
				return nil, err
			case errors.As(err, &apiErr) && apiErr.Kind == ghcerr.KindNotFound:
				_ = d.cache.Set(ctx, key, []DiscoveredCheckRun{}, missCacheTTL)
				return nil, nil
			default:
				// Other API errors: do not cache, return whatever was
				// gathered so far for this SHA.
				return checks, nil
			}
		}

		for _, raw := range bodies {
			dcr, convErr := convertCheckRun(raw)
			if convErr != nil {
				continue
			}
			checks = append(checks, dcr)
		}

		if !hasNext {
			break
		}
		page++
	}

	if len(checks) > 0 {
		_ = d.cache.Set(ctx, key, checks, hitCacheTTL)
	}
	return checks, nil
}

func convertCheckRun(raw map[string]any) (DiscoveredCheckRun, error) {
	id, ok := raw["id"]
	if !ok {
		return DiscoveredCheckRun{}, fmt.Errorf("check run missing id")
	}
	name, _ := raw["name"].(string)
	status, _ := raw["status"].(string)

	dcr := DiscoveredCheckRun{
		ExternalID: fmt.Sprintf("%v", id),
		Name:       name,
		Status:     status,
	}
	if c, ok := raw["conclusion"].(string); ok {
		dcr.Conclusion = &c
	}
	if u, ok := raw["details_url"].(string); ok {
		dcr.DetailsURL = &u
	}
	if t, ok := raw["started_at"].(string); ok && t != "" {
		if parsed, err := parseGitHubTimestamp(t); err == nil {
			dcr.StartedAt = &parsed
		}
	}
	if t, ok := raw["completed_at"].(string); ok && t != "" {
		if parsed, err := parseGitHubTimestamp(t); err == nil {
			dcr.CompletedAt = &parsed
		}
	}
	if out, ok := raw["output"].(map[string]any); ok {
		dcr.Output = convertOutput(out)
	}
	return dcr, nil
}

func parseGitHubTimestamp(s string) (time.Time, error) {
	s = strings.Replace(s, "Z", "+00:00", 1)
	return time.Parse("2006-01-02T15:04:05-07:00", s)
}

func convertOutput(raw map[string]any) *CheckOutput {
	out := &CheckOutput{}
	if t, ok := raw["title"].(string); ok {
		out.Title = &t
	}
	if s, ok := raw["summary"].(string); ok {
		out.Summary = &s
	}
	if txt, ok := raw["text"].(string); ok {
		out.Text = &txt
	}
	if n, ok := raw["annotations_count"].(float64); ok {
		out.AnnotationsCount = int(n)
	}
	if u, ok := raw["annotations_url"].(string); ok {
		out.AnnotationsURL = &u
	}
	return out
}

// DiscoveryStats reports the discoverer's concurrency configuration
// for diagnostics, mirroring get_discovery_stats in the Python
// original. Unlike asyncio.Semaphore, golang.org/x/sync/semaphore
// exposes no way to read the number of currently available slots, so
// AvailableSlots is omitted rather than faked.
type DiscoveryStats struct {
	MaxConcurrent int64
	BatchSize     int
}

// GetDiscoveryStats returns the discoverer's current concurrency
// configuration.
func (d *Discoverer) GetDiscoveryStats() DiscoveryStats {
	return DiscoveryStats{
		MaxConcurrent: d.maxConcurrent,
		BatchSize:     d.batchSize,
	}
}
