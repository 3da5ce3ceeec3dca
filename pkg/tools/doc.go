// Package tools defines the callable-tool contract shared by every tool provider and the
// assembly step that merges provider output into one name-keyed map.
//
// Invariants:
// - Every executor returns a string result or an error; nothing else crosses the boundary.
// - Assembly is last-writer-wins on duplicate names.
// - Arguments are validated against the specification's JSON schema before execution.
//
// Usage:
//
//	set, _ := tools.Assemble(ctx, logger, rc, providers, map[string]string{"work_dir": dir})
//	out, _ := set["echo"].Executor.Execute(ctx, tools.Request{ID: "call-1", Name: "echo", Arguments: `{"text":"hi"}`})
//	_ = out
package tools
