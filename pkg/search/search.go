// Package search answers web queries for the correction loop. Two backends
// are supported: SearXNG, which returns ranked links, and Perplexica, which
// also returns a synthesized answer.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by New.
const (
	BackendSearXNG    = "searxng"
	BackendPerplexica = "perplexica"
)

// DefaultMaxResults caps the results included in a formatted answer.
const DefaultMaxResults = 3

// DefaultFocusMode is the Perplexica focus mode used when none is requested.
const DefaultFocusMode = "webSearch"

// Query is a single search request.
type Query struct {
	Text       string
	FocusMode  string
	MaxResults int
}

// Result holds a single search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Response is what an adapter returns. Answer is empty for backends that
// only rank links.
type Response struct {
	Answer  string
	Results []Result
}

// Adapter is the interface for pluggable search backends.
type Adapter interface {
	Search(ctx context.Context, q Query) (*Response, error)
}

// Format builds a human-readable text block from a response.
func Format(query string, resp *Response) string {
	if resp == nil || (resp.Answer == "" && len(resp.Results) == 0) {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	if resp.Answer != "" {
		b.WriteString(strings.TrimSpace(resp.Answer))
		b.WriteString("\n\n")
	}
	if len(resp.Results) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "\n%d. %s\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
