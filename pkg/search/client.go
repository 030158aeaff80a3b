package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/runbox/pkg/debug"
	"github.com/rhuss/runbox/pkg/observability"
)

// Config selects and configures the backend behind a Client.
type Config struct {
	Backend          string
	URL              string
	MaxResults       int
	FocusMode        string
	OptimizationMode string
	HTTPClient       *http.Client
}

// Client wraps an Adapter and renders its responses as prompt text.
type Client struct {
	adapter    Adapter
	backend    string
	maxResults int
	focusMode  string
	logger     *slog.Logger
}

// New builds a Client for the configured backend.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("search: url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == "" {
		backend = BackendSearXNG
	}

	var adapter Adapter
	switch backend {
	case BackendSearXNG:
		adapter = NewSearXNG(cfg.URL, cfg.HTTPClient)
	case BackendPerplexica:
		p := NewPerplexica(cfg.URL, cfg.HTTPClient)
		if cfg.OptimizationMode != "" {
			p.OptimizationMode = cfg.OptimizationMode
		}
		adapter = p
	default:
		return nil, fmt.Errorf("search: unknown backend %q", backend)
	}

	return NewClient(adapter, backend, cfg.MaxResults, cfg.FocusMode, logger), nil
}

// NewClient wraps an existing adapter. backend is used as a metric label.
func NewClient(adapter Adapter, backend string, maxResults int, focusMode string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if focusMode == "" {
		focusMode = DefaultFocusMode
	}
	return &Client{
		adapter:    adapter,
		backend:    backend,
		maxResults: maxResults,
		focusMode:  focusMode,
		logger:     logger,
	}
}

// Backend returns the backend name.
func (c *Client) Backend() string { return c.backend }

// Query runs a search and returns the structured response.
func (c *Client) Query(ctx context.Context, query, focusMode string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		observability.SearchQueriesTotal.WithLabelValues(c.backend, "error").Inc()
		return nil, errors.New("query must not be empty")
	}
	if focusMode == "" {
		focusMode = c.focusMode
	}

	debug.Log("search", "querying", "backend", c.backend, "focus_mode", focusMode, "max_results", c.maxResults)
	resp, err := c.adapter.Search(ctx, Query{Text: query, FocusMode: focusMode, MaxResults: c.maxResults})
	if err != nil {
		observability.SearchQueriesTotal.WithLabelValues(c.backend, "error").Inc()
		c.logger.Warn("search failed", "backend", c.backend, "query", query, "error", err)
		return nil, err
	}
	observability.SearchQueriesTotal.WithLabelValues(c.backend, "success").Inc()
	c.logger.Debug("search completed", "backend", c.backend, "query", query, "results", len(resp.Results))
	return resp, nil
}

// Search runs a query and formats the answer as text.
func (c *Client) Search(ctx context.Context, query, focusMode string) (string, error) {
	resp, err := c.Query(ctx, query, focusMode)
	if err != nil {
		return "", err
	}
	return Format(query, resp), nil
}
