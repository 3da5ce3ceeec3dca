// Package retriever queries content sources that are consulted on every run, unlike tools which
// the model may or may not call. The Router performs no selection: every retriever is queried
// for every prompt and the union of results is injected ahead of the user turn.
package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/agentrun/internal/observability"
	"github.com/harun/agentrun/internal/tracing"
)

// Content is one retrieved snippet.
type Content struct {
	Text     string            `json:"text"`
	Source   string            `json:"source,omitempty"`
	Score    float64           `json:"score,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Retriever returns content relevant to a query.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query string) ([]Content, error)
}

// Router fans a query out to every retriever.
type Router struct {
	retrievers []Retriever
	logger     zerolog.Logger
}

// NewRouter creates a router over retrievers. Nil entries are skipped.
func NewRouter(logger zerolog.Logger, retrievers ...Retriever) *Router {
	rs := make([]Retriever, 0, len(retrievers))
	for _, r := range retrievers {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return &Router{retrievers: rs, logger: logger}
}

// Len returns the number of retrievers.
func (r *Router) Len() int { return len(r.retrievers) }

// Route queries every retriever in order and returns the concatenated results. A failing
// retriever fails the whole route.
func (r *Router) Route(ctx context.Context, query string) (out []Content, err error) {
	ctx, span := tracing.StartSpan(ctx, "agentrun.retriever", "retriever.route",
		attribute.Int("retriever.count", len(r.retrievers)),
	)
	defer func() { tracing.EndSpan(span, err) }()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	for _, rt := range r.retrievers {
		start := time.Now()
		contents, err := rt.Retrieve(ctx, query)
		observability.Emit(ctx, "retriever.retrieve", time.Since(start), map[string]string{"retriever": rt.Name()})
		if err != nil {
			return nil, fmt.Errorf("retriever %s failed: %w", rt.Name(), err)
		}
		logger.Debug().Str("retriever", rt.Name()).Int("results", len(contents)).Msg("Retrieved content")
		out = append(out, contents...)
	}
	span.SetAttributes(attribute.Int("retriever.results", len(out)))
	return out, nil
}

// Inject appends retrieved content to the prompt. Without content the prompt is returned
// unchanged.
func Inject(prompt string, contents []Content) string {
	texts := make([]string, 0, len(contents))
	for _, c := range contents {
		if t := strings.TrimSpace(c.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return prompt
	}
	return prompt + "\n\nAnswer using the following information:\n" + strings.Join(texts, "\n\n")
}

// Static always returns the same content.
type Static struct {
	name     string
	contents []Content
}

// NewStatic creates a retriever over fixed content.
func NewStatic(name string, contents ...Content) *Static {
	return &Static{name: name, contents: contents}
}

// Name returns the retriever name.
func (s *Static) Name() string { return s.name }

// Retrieve returns a copy of the fixed content.
func (s *Static) Retrieve(ctx context.Context, query string) ([]Content, error) {
	return append([]Content(nil), s.contents...), nil
}

// Func adapts a function to Retriever.
type Func struct {
	ID string
	Fn func(ctx context.Context, query string) ([]Content, error)
}

// Name returns f.ID.
func (f Func) Name() string { return f.ID }

// Retrieve calls f.Fn.
func (f Func) Retrieve(ctx context.Context, query string) ([]Content, error) {
	return f.Fn(ctx, query)
}
