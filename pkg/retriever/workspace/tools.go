package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/agentrun/pkg/tools"
)

// SearchParams are the arguments of workspace_search.
type SearchParams struct {
	Query         string  `json:"query"`
	Limit         int     `json:"limit,omitempty"`
	VectorWeight  float64 `json:"vector_weight,omitempty"`
	KeywordWeight float64 `json:"keyword_weight,omitempty"`
	MinScore      float64 `json:"min_score,omitempty"`
}

// SearchResponse is returned by workspace_search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Query   string         `json:"query"`
	Count   int            `json:"count"`
}

// WriteResponse is returned by workspace_write.
type WriteResponse struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	Created      bool   `json:"created"`
}

// DeleteResponse is returned by workspace_delete.
type DeleteResponse struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// FileInfo describes one workspace file.
type FileInfo struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	ModifiedTime time.Time `json:"modified_time"`
}

// ListResponse is returned by workspace_list.
type ListResponse struct {
	Files []FileInfo `json:"files"`
	Count int        `json:"count"`
}

// SearchFiles runs a search with per-call weights, falling back to the defaults.
func (x *Index) SearchFiles(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	opts := DefaultSearchOptions()
	if params.Limit > 0 {
		opts.Limit = params.Limit
	}
	if params.VectorWeight > 0 {
		opts.VectorWeight = params.VectorWeight
	}
	if params.KeywordWeight > 0 {
		opts.KeywordWeight = params.KeywordWeight
	}
	opts.MinScore = params.MinScore

	results, err := x.Search(ctx, params.Query, opts)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return &SearchResponse{Results: results, Query: params.Query, Count: len(results)}, nil
}

// WriteFile creates or replaces a markdown file and marks the index dirty.
func (x *Index) WriteFile(path, content string) (*WriteResponse, error) {
	if filepath.Ext(path) != ".md" {
		return nil, fmt.Errorf("path must end with .md")
	}
	fullPath, err := ResolvePath(x.workspacePath, path)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(fullPath)
	created := os.IsNotExist(statErr)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	x.MarkDirty()
	return &WriteResponse{Path: path, BytesWritten: len(content), Created: created}, nil
}

// DeleteFile removes a workspace file. A missing file is not an error.
func (x *Index) DeleteFile(path string) (*DeleteResponse, error) {
	fullPath, err := ResolvePath(x.workspacePath, path)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return &DeleteResponse{Path: path, Deleted: false}, nil
		}
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}

	x.MarkDirty()
	return &DeleteResponse{Path: path, Deleted: true}, nil
}

// ListFiles lists markdown files, optionally filtered by a glob on the relative path.
func (x *Index) ListFiles(pattern string) (*ListResponse, error) {
	files := []FileInfo{}
	err := filepath.WalkDir(x.workspacePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		relPath, err := filepath.Rel(x.workspacePath, path)
		if err != nil {
			return err
		}
		if pattern != "" {
			matched, err := filepath.Match(pattern, relPath)
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Path:         relPath,
			SizeBytes:    info.Size(),
			ModifiedTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return &ListResponse{Files: files, Count: len(files)}, nil
}

// ToolProvider exposes an Index as workspace_* tools.
type ToolProvider struct {
	index    *Index
	readOnly bool
}

var _ tools.Provider = (*ToolProvider)(nil)

// NewToolProvider wraps idx. A read-only provider only offers search and list.
func NewToolProvider(idx *Index, readOnly bool) *ToolProvider {
	return &ToolProvider{index: idx, readOnly: readOnly}
}

// Name returns "workspace".
func (p *ToolProvider) Name() string { return "workspace" }

// Tools builds the workspace tool set.
func (p *ToolProvider) Tools(ctx context.Context, rc tools.RunContext, vars map[string]string) (map[string]tools.Tool, error) {
	x := p.index
	set := map[string]tools.Tool{}

	add := func(spec tools.Specification, fn func(ctx context.Context, args map[string]any) (any, error)) error {
		tool, err := tools.Func(spec, fn)
		if err != nil {
			return fmt.Errorf("failed to build %s tool: %w", spec.Name, err)
		}
		set[spec.Name] = tool
		return nil
	}

	err := add(tools.Specification{
		Name:        "workspace_search",
		Description: "Search workspace notes by query using semantic and keyword search",
		Parameters: tools.ObjectSchema(map[string]any{
			"query":          tools.Property("string", "Search query"),
			"limit":          tools.Property("integer", "Maximum number of results (default: 20)"),
			"vector_weight":  tools.Property("number", "Weight for vector search (default: 0.7)"),
			"keyword_weight": tools.Property("number", "Weight for keyword search (default: 0.3)"),
			"min_score":      tools.Property("number", "Minimum relevance score (default: 0)"),
		}, "query"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		params := SearchParams{}
		params.Query, _ = args["query"].(string)
		if v, ok := args["limit"].(float64); ok {
			params.Limit = int(v)
		}
		params.VectorWeight, _ = args["vector_weight"].(float64)
		params.KeywordWeight, _ = args["keyword_weight"].(float64)
		params.MinScore, _ = args["min_score"].(float64)
		return x.SearchFiles(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	err = add(tools.Specification{
		Name:        "workspace_list",
		Description: "List workspace notes",
		Parameters: tools.ObjectSchema(map[string]any{
			"pattern": tools.Property("string", "Optional glob pattern to filter files"),
		}),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		pattern, _ := args["pattern"].(string)
		return x.ListFiles(pattern)
	})
	if err != nil {
		return nil, err
	}

	if p.readOnly {
		return set, nil
	}

	err = add(tools.Specification{
		Name:        "workspace_write",
		Description: "Create or update a workspace note",
		Parameters: tools.ObjectSchema(map[string]any{
			"path":    tools.Property("string", "Relative path to the file (must end with .md)"),
			"content": tools.Property("string", "File content"),
		}, "path", "content"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		content, _ := args["content"].(string)
		return x.WriteFile(path, content)
	})
	if err != nil {
		return nil, err
	}

	err = add(tools.Specification{
		Name:        "workspace_delete",
		Description: "Delete a workspace note",
		Parameters: tools.ObjectSchema(map[string]any{
			"path": tools.Property("string", "Relative path to the file"),
		}, "path"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		return x.DeleteFile(path)
	})
	if err != nil {
		return nil, err
	}

	return set, nil
}

// Close is a no-op; the index outlives individual runs.
func (p *ToolProvider) Close(ctx context.Context) error { return nil }
