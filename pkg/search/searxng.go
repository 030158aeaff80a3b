package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// SearXNG implements Adapter against a SearXNG instance's JSON API.
type SearXNG struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSearXNG creates a SearXNG adapter with the given base URL.
func NewSearXNG(baseURL string, hc *http.Client) *SearXNG {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &SearXNG{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: hc,
	}
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search queries the SearXNG instance. FocusMode is ignored.
func (s *SearXNG) Search(ctx context.Context, q Query) (*Response, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&format=json&categories=general",
		s.BaseURL, url.QueryEscape(q.Text))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var sr searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	limit := maxResults(q.MaxResults)
	out := &Response{Results: make([]Result, 0, min(len(sr.Results), limit))}
	for _, r := range sr.Results {
		if len(out.Results) >= limit {
			break
		}
		out.Results = append(out.Results, Result{
			Title:   stripHTML(r.Title),
			URL:     r.URL,
			Snippet: stripHTML(r.Content),
		})
	}
	return out, nil
}

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(s, ""))
}

func maxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return n
}
