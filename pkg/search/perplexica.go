package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ModelRef names a model on a Perplexica-configured provider.
type ModelRef struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// Perplexica implements Adapter against the Perplexica /api/search endpoint.
type Perplexica struct {
	BaseURL          string
	HTTPClient       *http.Client
	ChatModel        *ModelRef
	EmbeddingModel   *ModelRef
	OptimizationMode string
}

// NewPerplexica creates a Perplexica adapter. The optimization mode
// defaults to "balanced".
func NewPerplexica(baseURL string, hc *http.Client) *Perplexica {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Perplexica{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		HTTPClient:       hc,
		OptimizationMode: "balanced",
	}
}

type perplexicaRequest struct {
	ChatModel        *ModelRef `json:"chatModel,omitempty"`
	EmbeddingModel   *ModelRef `json:"embeddingModel,omitempty"`
	OptimizationMode string    `json:"optimizationMode"`
	FocusMode        string    `json:"focusMode"`
	Query            string    `json:"query"`
	Stream           bool      `json:"stream"`
}

type perplexicaResponse struct {
	Message string             `json:"message"`
	Sources []perplexicaSource `json:"sources"`
}

type perplexicaSource struct {
	PageContent string `json:"pageContent"`
	Metadata    struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"metadata"`
}

// Search posts the query and returns the synthesized answer with its sources.
func (p *Perplexica) Search(ctx context.Context, q Query) (*Response, error) {
	focus := q.FocusMode
	if focus == "" {
		focus = DefaultFocusMode
	}
	body, err := json.Marshal(perplexicaRequest{
		ChatModel:        p.ChatModel,
		EmbeddingModel:   p.EmbeddingModel,
		OptimizationMode: p.OptimizationMode,
		FocusMode:        focus,
		Query:            q.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pr perplexicaResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	limit := maxResults(q.MaxResults)
	out := &Response{Answer: pr.Message}
	for _, s := range pr.Sources {
		if len(out.Results) >= limit {
			break
		}
		title := s.Metadata.Title
		if title == "" {
			title = "No title"
		}
		out.Results = append(out.Results, Result{
			Title:   title,
			URL:     s.Metadata.URL,
			Snippet: strings.TrimSpace(s.PageContent),
		})
	}
	return out, nil
}
