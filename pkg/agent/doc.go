// Package agent runs one agent invocation: it builds a chat model from a provider and an
// immutable configuration, attaches tools, memory and retrievers, executes exactly one user
// turn (including the model's tool calls, bounded by a call budget) and always releases what it
// acquired.
//
// Usage:
//
//	a, err := agent.Build(provider, model.Config{Model: "gpt-4o-mini"}, agent.WithLogger(logger))
//	if err != nil {
//		return err // *agent.ConfigurationError
//	}
//	res, err := a.Invoke(ctx, agent.Spec{Prompt: "Hello", Memory: mgr, MemoryID: "user-42"})
package agent
