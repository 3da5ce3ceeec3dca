// Package workspace indexes the markdown files of a directory and serves them as a retriever
// and as a set of agent tools.
//
// Chunks are kept in SQLite with an FTS5 table for keyword search and, when an Embedder is
// configured, a sqlite-vec table for vector search. Results of both are merged with weights.
//
// Usage:
//
//	idx, _ := workspace.NewIndex(workspace.Config{WorkspacePath: "/workspace", DBPath: "/data/ws.db"})
//	defer idx.Close()
//	contents, _ := idx.Retrieve(ctx, "deployment checklist")
//	_ = contents
package workspace
