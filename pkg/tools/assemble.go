package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Assemble asks every provider for its tools and merges them into one map keyed by tool name.
// A name produced by more than one provider resolves to the last provider in the list; the
// override is reported on logger.
func Assemble(ctx context.Context, logger zerolog.Logger, rc RunContext, providers []Provider, vars map[string]string) (map[string]Tool, error) {
	merged := make(map[string]Tool)
	for _, p := range providers {
		if p == nil {
			continue
		}
		set, err := p.Tools(ctx, rc, vars)
		if err != nil {
			return nil, fmt.Errorf("failed to assemble tools from %s: %w", p.Name(), err)
		}
		for name, tool := range set {
			if _, exists := merged[name]; exists {
				logger.Warn().
					Str("tool", name).
					Str("provider", p.Name()).
					Msg("Duplicate tool name, later provider wins")
			}
			merged[name] = tool
		}
	}
	return merged, nil
}

// Specifications lists the specifications of a tool map.
func Specifications(set map[string]Tool) []Specification {
	specs := make([]Specification, 0, len(set))
	for _, tool := range set {
		specs = append(specs, tool.Spec)
	}
	return specs
}
