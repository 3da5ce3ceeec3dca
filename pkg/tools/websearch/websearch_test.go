package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/tools"
)

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(Config{Engine: "tavily"})
	assert.Error(t, err)
	_, err = NewEngine(Config{Engine: "searxng"})
	assert.Error(t, err)
	_, err = NewEngine(Config{Engine: "altavista"})
	assert.Error(t, err)

	e, err := NewEngine(Config{Engine: "tavily", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "tavily", e.Name())
}

func TestTavily_Search(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"title":"Go","url":"https://go.dev","content":"The Go language","score":0.9}]}`))
	}))
	defer srv.Close()

	e, err := NewEngine(Config{Engine: "tavily", APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	hits, err := e.Search(context.Background(), "golang", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, Hit{Title: "Go", URL: "https://go.dev", Snippet: "The Go language", Score: 0.9}, hits[0])
	assert.Equal(t, "golang", body["query"])
	assert.Equal(t, float64(3), body["max_results"])
}

func TestSearXNG_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		w.Write([]byte(`{"results":[{"title":"a","url":"u1"},{"title":"b","url":"u2"},{"title":"c","url":"u3"}]}`))
	}))
	defer srv.Close()

	e, err := NewEngine(Config{Engine: "searxng", BaseURL: srv.URL})
	require.NoError(t, err)

	hits, err := e.Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e, err := NewEngine(Config{Engine: "searxng", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type stubEngine struct {
	gotLimit int
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	s.gotLimit = limit
	return []Hit{{Title: query, URL: "https://example.com"}}, nil
}

func TestProvider(t *testing.T) {
	engine := &stubEngine{}
	p := NewProvider(engine, 0, zerolog.Nop())
	assert.Equal(t, "websearch:stub", p.Name())

	set, err := p.Tools(context.Background(), tools.RunContext{}, nil)
	require.NoError(t, err)

	out, err := set[ToolName].Executor.Execute(context.Background(), tools.Request{ID: "c1", Arguments: `{"query":"weather"}`})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"weather","url":"https://example.com","snippet":""}]`, out)
	assert.Equal(t, 5, engine.gotLimit)

	_, err = set[ToolName].Executor.Execute(context.Background(), tools.Request{ID: "c2", Arguments: `{}`})
	assert.Error(t, err)
}
