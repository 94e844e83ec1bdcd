// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package pagination follows GitHub's Link-header pagination
// convention, grounded in the Python original's LinkHeader,
// PaginatedResponse, and AsyncPaginator (src/github/pagination.py).
package pagination

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
)

var linkEntry = regexp.MustCompile(`<([^>]+)>;\s*rel="([^"]+)"`)

// LinkHeader is a parsed GitHub Link response header: a map from
// relation name ("next", "prev", "first", "last") to absolute URL.
type LinkHeader struct {
	links map[string]string
}

// ParseLinkHeader parses a raw Link header value. An empty or absent
// header yields a LinkHeader with no relations.
func ParseLinkHeader(raw string) LinkHeader {
	links := map[string]string{}
	for _, m := range linkEntry.FindAllStringSubmatch(raw, -1) {
		links[m[2]] = m[1]
	}
	return LinkHeader{links: links}
}

// NextURL returns the "next" relation's URL, if present.
func (l LinkHeader) NextURL() (string, bool) {
	u, ok := l.links["next"]
	return u, ok
}

// LastURL returns the "last" relation's URL, if present.
func (l LinkHeader) LastURL() (string, bool) {
	u, ok := l.links["last"]
	return u, ok
}

// HasNext reports whether a "next" relation was present.
func (l LinkHeader) HasNext() bool {
	_, ok := l.links["next"]
	return ok
}

// LastPageNumber extracts the "page" query parameter from the "last"
// relation's URL, if any.
func (l LinkHeader) LastPageNumber() (int, bool) {
	last, ok := l.LastURL()
	if !ok {
		return 0, false
	}
	parsed, err := url.Parse(last)
	if err != nil {
		return 0, false
	}
	page := parsed.Query().Get("page")
	if page == "" {
		return 0, false
	}
	n, err := strconv.Atoi(page)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String renders the LinkHeader back into the wire format, for
// callers that need to forward it unchanged (the inverse of
// ParseLinkHeader).
func (l LinkHeader) String() string {
	if len(l.links) == 0 {
		return ""
	}
	out := ""
	for _, rel := range []string{"first", "prev", "next", "last"} {
		u, ok := l.links[rel]
		if !ok {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += "<" + u + `>; rel="` + rel + `"`
	}
	return out
}

// maxPerPage is GitHub's hard ceiling on page size.
const maxPerPage = 100

// PageFetcher performs one paginated GET. *ghclient.Client satisfies
// this; it is defined here, rather than imported from ghclient, to
// avoid an import cycle between the parent package and this
// subpackage.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string, query url.Values) ([]any, http.Header, error)
}

// Paginator walks a GitHub collection endpoint page by page, following
// the Link header's "next" relation, mirroring AsyncPaginator.
type Paginator struct {
	fetcher  PageFetcher
	url      string
	query    url.Values
	perPage  int
	maxPages int
}

// NewPaginator constructs a Paginator for initialURL. perPage is
// clamped to maxPerPage. maxPages of 0 means unbounded.
func NewPaginator(fetcher PageFetcher, initialURL string, query url.Values, perPage, maxPages int) *Paginator {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	if query == nil {
		query = url.Values{}
	}
	query = cloneValues(query)
	query.Set("per_page", strconv.Itoa(perPage))

	return &Paginator{
		fetcher:  fetcher,
		url:      initialURL,
		query:    query,
		perPage:  perPage,
		maxPages: maxPages,
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// CollectAll fetches every page and returns the concatenated items.
func (p *Paginator) CollectAll(ctx context.Context) ([]any, error) {
	return p.collect(ctx, 0)
}

// CollectPages fetches at most numPages pages and returns their
// concatenated items.
func (p *Paginator) CollectPages(ctx context.Context, numPages int) ([]any, error) {
	return p.collect(ctx, numPages)
}

func (p *Paginator) collect(ctx context.Context, pageCap int) ([]any, error) {
	var all []any
	nextURL := p.url
	query := p.query
	page := 0

	for nextURL != "" {
		if p.maxPages > 0 && page >= p.maxPages {
			break
		}
		if pageCap > 0 && page >= pageCap {
			break
		}

		items, headers, err := p.fetcher.FetchPage(ctx, nextURL, query)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		page++

		link := ParseLinkHeader(headers.Get("Link"))
		next, ok := link.NextURL()
		if !ok {
			break
		}
		nextURL = next
		// The next URL already carries its own query string; subsequent
		// fetches pass no additional query parameters.
		query = nil
	}

	return all, nil
}
