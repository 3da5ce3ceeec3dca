// Package websearch exposes web search engines as the web_search tool.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/tools"
)

// ToolName is the name of the search tool.
const ToolName = "web_search"

// Hit is one search result.
type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Engine runs a query.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// Config selects and configures an engine.
type Config struct {
	Engine     string        `json:"engine" mapstructure:"engine"` // tavily | searxng
	APIKey     string        `json:"api_key" mapstructure:"api_key"`
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	MaxResults int           `json:"max_results" mapstructure:"max_results"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewEngine builds the engine named by cfg.Engine.
func NewEngine(cfg Config) (Engine, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout == 0 {
		client.Timeout = 30 * time.Second
	}
	switch cfg.Engine {
	case "tavily":
		if cfg.APIKey == "" {
			return nil, errors.New("tavily api key is required")
		}
		base := cfg.BaseURL
		if base == "" {
			base = "https://api.tavily.com"
		}
		return &Tavily{apiKey: cfg.APIKey, baseURL: base, client: client}, nil
	case "searxng":
		if cfg.BaseURL == "" {
			return nil, errors.New("searxng base url is required")
		}
		return &SearXNG{baseURL: cfg.BaseURL, client: client}, nil
	}
	return nil, fmt.Errorf("unknown web search engine %q", cfg.Engine)
}

// Tavily queries the Tavily search API.
type Tavily struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Name returns "tavily".
func (t *Tavily) Name() string { return "tavily" }

// Search posts the query to /search.
func (t *Tavily) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	body, err := json.Marshal(map[string]any{
		"query":       query,
		"max_results": limit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	var resp struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := doJSON(t.client, req, &resp); err != nil {
		return nil, fmt.Errorf("tavily search failed: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, Hit{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
	}
	return hits, nil
}

// SearXNG queries a SearXNG instance with format=json.
type SearXNG struct {
	baseURL string
	client  *http.Client
}

// Name returns "searxng".
func (s *SearXNG) Name() string { return "searxng" }

// Search issues GET /search.
func (s *SearXNG) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := doJSON(s.client, req, &resp); err != nil {
		return nil, fmt.Errorf("searxng search failed: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		if limit > 0 && len(hits) == limit {
			break
		}
		hits = append(hits, Hit{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
	}
	return hits, nil
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Provider exposes an Engine as web_search.
type Provider struct {
	engine     Engine
	maxResults int
	logger     zerolog.Logger
}

var _ tools.Provider = (*Provider)(nil)

// NewProvider wraps engine. maxResults caps every query, default 5.
func NewProvider(engine Engine, maxResults int, logger zerolog.Logger) *Provider {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Provider{engine: engine, maxResults: maxResults, logger: logger}
}

// Name returns the engine name.
func (p *Provider) Name() string { return "websearch:" + p.engine.Name() }

// Tools returns web_search.
func (p *Provider) Tools(ctx context.Context, rc tools.RunContext, vars map[string]string) (map[string]tools.Tool, error) {
	spec := tools.Specification{
		Name:        ToolName,
		Description: "Search the web and return titles, urls and snippets of the best matching pages",
		Parameters: tools.ObjectSchema(map[string]any{
			"query": tools.Property("string", "Search query"),
		}, "query"),
	}
	tool, err := tools.Func(spec, func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return nil, errors.New("query is required")
		}

		ctx, span := tracing.StartSpan(ctx, "agentrun.tools", "websearch.search")
		defer span.End()

		hits, err := p.engine.Search(ctx, query, p.maxResults)
		if err != nil {
			return nil, err
		}
		logger := tracing.LoggerFromContext(ctx, p.logger)
		logger.Debug().
			Str("engine", p.engine.Name()).
			Int("hits", len(hits)).
			Msg("Web search completed")
		return hits, nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]tools.Tool{ToolName: tool}, nil
}

// Close is a no-op.
func (p *Provider) Close(ctx context.Context) error { return nil }
