package workspace

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/agentrun/internal/observability"
	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/retriever"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Embedder turns texts into vectors. model.EmbeddingModel satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// SearchResult represents a search result with relevance score
type SearchResult struct {
	ChunkID      string   `json:"chunk_id"`
	FilePath     string   `json:"file_path"`
	Content      string   `json:"content"`
	Score        float64  `json:"score"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
	KeywordScore *float64 `json:"keyword_score,omitempty"`
}

// SearchOptions configures search behavior
type SearchOptions struct {
	Limit         int     `json:"limit" mapstructure:"limit"`
	VectorWeight  float64 `json:"vector_weight" mapstructure:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight" mapstructure:"keyword_weight"`
	MinScore      float64 `json:"min_score" mapstructure:"min_score"`
}

// DefaultSearchOptions returns the options used when none are given.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: 20, VectorWeight: 0.7, KeywordWeight: 0.3}
}

// Status represents the current state of the index
type Status struct {
	TotalFiles            int        `json:"total_files"`
	TotalChunks           int        `json:"total_chunks"`
	IsDirty               bool       `json:"is_dirty"`
	IsSyncing             bool       `json:"is_syncing"`
	EmbeddingCacheHitRate *float64   `json:"embedding_cache_hit_rate,omitempty"`
	LastSyncTime          *time.Time `json:"last_sync_time,omitempty"`
}

// Config holds index configuration
type Config struct {
	WorkspacePath string
	DBPath        string
	Logger        zerolog.Logger
	Embedder      Embedder      // Optional, if nil only keyword search is used
	Search        SearchOptions // options used by Retrieve
	Watch         bool          // watch the workspace and re-sync on change
}

// Index keeps workspace markdown files chunked in SQLite and answers hybrid
// (FTS5 keyword + sqlite-vec vector) queries.
type Index struct {
	db            *sql.DB
	workspacePath string
	logger        zerolog.Logger
	embedder      Embedder
	search        SearchOptions
	watcher       *FileWatcher

	mu           sync.RWMutex
	isDirty      bool
	isSyncing    bool
	lastSyncTime *time.Time
	stats        struct {
		cacheHits   int
		cacheMisses int
	}
}

var _ retriever.Retriever = (*Index)(nil)

// NewIndex opens the index database and, when configured, starts watching the workspace.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.WorkspacePath == "" {
		return nil, errors.New("workspace path is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	// Open database with FTS5 support
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	search := cfg.Search
	if search.Limit == 0 {
		search = DefaultSearchOptions()
	}

	idx := &Index{
		db:            db,
		workspacePath: cfg.WorkspacePath,
		logger:        cfg.Logger,
		embedder:      cfg.Embedder,
		search:        search,
		isDirty:       true, // Start dirty to trigger initial sync
	}

	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.Watch {
		watcher, err := NewFileWatcher(cfg.Logger, idx.MarkDirty)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Watch(cfg.WorkspacePath); err != nil {
			watcher.Stop()
			db.Close()
			return nil, fmt.Errorf("failed to watch workspace: %w", err)
		}
		idx.watcher = watcher
	}

	idx.logger.Info().Str("workspace", cfg.WorkspacePath).Msg("Workspace index initialized")
	return idx, nil
}

// initSchema creates database tables
func (x *Index) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			content_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_files_hash ON files(content_hash);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			file_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`

	if _, err := x.db.Exec(schema); err != nil {
		return err
	}

	if x.embedder != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
				chunk_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, x.embedder.Dimension())

		if _, err := x.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// Name returns "workspace".
func (x *Index) Name() string { return "workspace" }

// Retrieve searches the workspace with the configured options.
func (x *Index) Retrieve(ctx context.Context, query string) ([]retriever.Content, error) {
	results, err := x.Search(ctx, query, x.search)
	if err != nil {
		return nil, err
	}
	out := make([]retriever.Content, 0, len(results))
	for _, r := range results {
		out = append(out, retriever.Content{
			Text:     r.Content,
			Source:   r.FilePath,
			Score:    r.Score,
			Metadata: map[string]string{"chunk_id": r.ChunkID},
		})
	}
	return out, nil
}

// Search performs hybrid search (vector + keyword)
func (x *Index) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "agentrun.workspace", "workspace.search",
		attribute.String("query", query),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, x.logger)
	done := observability.Timer(ctx, "workspace.search")
	defer done(nil)

	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchOptions().Limit
	}

	x.mu.RLock()
	dirty := x.isDirty
	x.mu.RUnlock()

	if dirty {
		if err := x.Sync(ctx); err != nil {
			logger.Warn().Err(err).Msg("Sync failed before search")
		}
	}

	var (
		vectorResults  []vectorSearchResult
		keywordResults []keywordSearchResult
		vectorErr      error
	)
	if x.embedder != nil {
		vectorResults, vectorErr = x.vectorSearch(ctx, query, 200)
		if vectorErr != nil {
			logger.Warn().Err(vectorErr).Msg("Vector search failed, using keyword only")
		}
	}
	keywordResults, keywordErr := x.keywordSearch(ctx, query, 200)
	if keywordErr != nil {
		logger.Warn().Err(keywordErr).Msg("Keyword search failed")
	}

	if keywordErr != nil && (x.embedder == nil || vectorErr != nil) {
		span.RecordError(keywordErr)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("workspace search failed: %w", keywordErr)
	}

	results := x.mergeResults(ctx, vectorResults, keywordResults, opts)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	logger.Debug().
		Str("query", query).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

type vectorSearchResult struct {
	chunkID    string
	similarity float64 // cosine similarity (-1 to 1)
}

type keywordSearchResult struct {
	chunkID   string
	bm25Score float64
}

// vectorSearch performs vector similarity search
func (x *Index) vectorSearch(ctx context.Context, query string, limit int) ([]vectorSearchResult, error) {
	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedder returned no vector")
	}

	embeddingJSON, err := json.Marshal(vectors[0])
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT chunk_id, vec_distance_cosine(embedding, ?) AS distance
		FROM embeddings
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []vectorSearchResult
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, err
		}
		results = append(results, vectorSearchResult{
			chunkID:    chunkID,
			similarity: 1.0 - distance,
		})
	}

	return results, rows.Err()
}

var ftsToken = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// ftsQuery turns free text into an FTS5 OR query of quoted terms, so punctuation in a prompt
// never reaches the FTS5 query parser.
func ftsQuery(query string) string {
	tokens := ftsToken.FindAllString(query, -1)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// keywordSearch performs FTS5 keyword search
func (x *Index) keywordSearch(ctx context.Context, query string, limit int) ([]keywordSearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []keywordSearchResult
	for rows.Next() {
		var chunkID string
		var score float64
		if err := rows.Scan(&chunkID, &score); err != nil {
			return nil, err
		}
		// BM25 scores are negative, convert to positive
		results = append(results, keywordSearchResult{
			chunkID:   chunkID,
			bm25Score: -score,
		})
	}

	return results, rows.Err()
}

// mergeResults combines vector and keyword search results
func (x *Index) mergeResults(ctx context.Context, vectorResults []vectorSearchResult, keywordResults []keywordSearchResult, opts SearchOptions) []SearchResult {
	vectorMap := make(map[string]float64)
	keywordMap := make(map[string]float64)

	var maxKeyword float64
	for _, r := range vectorResults {
		vectorMap[r.chunkID] = r.similarity
	}
	for _, r := range keywordResults {
		keywordMap[r.chunkID] = r.bm25Score
		if r.bm25Score > maxKeyword {
			maxKeyword = r.bm25Score
		}
	}

	// keyword-only indexes would otherwise cap every score at KeywordWeight
	vectorWeight, keywordWeight := opts.VectorWeight, opts.KeywordWeight
	if x.embedder == nil {
		vectorWeight, keywordWeight = 0, 1
	}

	chunkIDs := make(map[string]bool)
	for id := range vectorMap {
		chunkIDs[id] = true
	}
	for id := range keywordMap {
		chunkIDs[id] = true
	}

	type scoredResult struct {
		chunkID      string
		score        float64
		vectorScore  *float64
		keywordScore *float64
	}

	var scored []scoredResult
	for chunkID := range chunkIDs {
		var normalizedVector, normalizedKeyword float64
		var vecPtr, keyPtr *float64

		// Normalize vector score: map similarity [-1, 1] to [0, 1]
		if v, ok := vectorMap[chunkID]; ok {
			normalizedVector = (v + 1) / 2
			vecPtr = &normalizedVector
		}
		if k, ok := keywordMap[chunkID]; ok {
			if maxKeyword > 0 {
				normalizedKeyword = k / maxKeyword
			}
			keyPtr = &normalizedKeyword
		}

		combined := normalizedVector*vectorWeight + normalizedKeyword*keywordWeight
		if opts.MinScore > 0 && combined < opts.MinScore {
			continue
		}

		scored = append(scored, scoredResult{
			chunkID:      chunkID,
			score:        combined,
			vectorScore:  vecPtr,
			keywordScore: keyPtr,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score == scored[j].score {
			return scored[i].chunkID < scored[j].chunkID
		}
		return scored[i].score > scored[j].score
	})

	results := make([]SearchResult, 0, len(scored))
	for _, s := range scored {
		var content, filePath string
		err := x.db.QueryRowContext(ctx, `
			SELECT c.content, f.path
			FROM chunks c
			JOIN files f ON c.file_id = f.id
			WHERE c.id = ?
		`, s.chunkID).Scan(&content, &filePath)
		if err != nil {
			x.logger.Warn().Err(err).Str("chunk_id", s.chunkID).Msg("Failed to fetch chunk details")
			continue
		}

		results = append(results, SearchResult{
			ChunkID:      s.chunkID,
			FilePath:     filePath,
			Content:      content,
			Score:        s.score,
			VectorScore:  s.vectorScore,
			KeywordScore: s.keywordScore,
		})
	}

	return results
}

// Sync indexes the workspace
func (x *Index) Sync(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "agentrun.workspace", "workspace.sync")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, x.logger)

	x.mu.Lock()
	if x.isSyncing {
		x.mu.Unlock()
		span.SetStatus(codes.Error, "sync already in progress")
		return errors.New("sync already in progress")
	}
	x.isSyncing = true
	x.mu.Unlock()

	defer func() {
		x.mu.Lock()
		x.isSyncing = false
		x.isDirty = false
		now := time.Now()
		x.lastSyncTime = &now
		x.mu.Unlock()
	}()

	start := time.Now()

	var mdFiles []string
	err := filepath.WalkDir(x.workspacePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			relPath, _ := filepath.Rel(x.workspacePath, path)
			mdFiles = append(mdFiles, relPath)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to walk workspace: %w", err)
	}

	filesIndexed := 0
	filesSkipped := 0
	chunksCreated := 0

	for _, relPath := range mdFiles {
		indexed, chunks, err := x.indexFile(ctx, filepath.Join(x.workspacePath, relPath), relPath)
		if err != nil {
			logger.Warn().Err(err).Str("file", relPath).Msg("Failed to index file")
			span.RecordError(err)
			continue
		}
		if indexed {
			filesIndexed++
			chunksCreated += chunks
		} else {
			filesSkipped++
		}
	}

	pruned, err := x.pruneDeletedFiles(ctx, mdFiles)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune deleted files")
		span.RecordError(err)
	}

	logger.Info().
		Int("files_indexed", filesIndexed).
		Int("files_skipped", filesSkipped).
		Int("chunks_created", chunksCreated).
		Int("files_pruned", pruned).
		Dur("duration", time.Since(start)).
		Msg("Sync completed")

	return nil
}

// indexFile indexes a single file
func (x *Index) indexFile(ctx context.Context, fullPath, relPath string) (bool, int, error) {
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return false, 0, err
	}

	hash := sha256.Sum256(content)
	contentHash := hex.EncodeToString(hash[:])

	var existingHash string
	err = x.db.QueryRowContext(ctx, "SELECT content_hash FROM files WHERE path = ?", relPath).Scan(&existingHash)
	if err == nil && existingHash == contentHash {
		return false, 0, nil
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	if err := x.deleteFile(ctx, tx, relPath); err != nil {
		return false, 0, err
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO files (path, content_hash, indexed_at, size_bytes) VALUES (?, ?, ?, ?)",
		relPath, contentHash, time.Now().Unix(), len(content),
	)
	if err != nil {
		return false, 0, err
	}
	fileID, _ := result.LastInsertId()

	chunks := chunkContent(string(content))
	for i, chunk := range chunks {
		chunkID := fmt.Sprintf("%s#%d", relPath, i)

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks (id, file_id, content, start_offset, end_offset) VALUES (?, ?, ?, ?, ?)",
			chunkID, fileID, chunk.content, chunk.startOffset, chunk.endOffset,
		); err != nil {
			return false, 0, err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)",
			chunkID, chunk.content,
		); err != nil {
			return false, 0, err
		}

		if x.embedder != nil {
			if err := x.storeEmbedding(ctx, tx, chunkID, chunk.content); err != nil {
				x.logger.Warn().Err(err).Str("chunk_id", chunkID).Msg("Failed to store embedding")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, 0, err
	}

	return true, len(chunks), nil
}

// deleteFile removes a file with its chunks, FTS rows and vectors.
func (x *Index) deleteFile(ctx context.Context, tx *sql.Tx, relPath string) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT c.id FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.path = ?", relPath)
	if err != nil {
		return err
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()

	for _, id := range chunkIDs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE chunk_id = ?", id); err != nil {
			return err
		}
		if x.embedder != nil {
			if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE chunk_id = ?", id); err != nil {
				return err
			}
		}
	}

	// chunks cascade
	_, err = tx.ExecContext(ctx, "DELETE FROM files WHERE path = ?", relPath)
	return err
}

// storeEmbedding generates and stores embedding for a chunk
func (x *Index) storeEmbedding(ctx context.Context, tx *sql.Tx, chunkID, content string) error {
	hashBytes := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(hashBytes[:])

	var cached []byte
	err := tx.QueryRowContext(ctx, "SELECT embedding FROM embedding_cache WHERE content_hash = ?", contentHash).Scan(&cached)

	var embeddingJSON []byte
	if err == nil {
		x.mu.Lock()
		x.stats.cacheHits++
		x.mu.Unlock()
		embeddingJSON = cached
	} else {
		x.mu.Lock()
		x.stats.cacheMisses++
		x.mu.Unlock()

		vectors, err := x.embedder.Embed(ctx, []string{content})
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
		if len(vectors) == 0 {
			return errors.New("embedder returned no vector")
		}
		embeddingJSON, err = json.Marshal(vectors[0])
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)",
			contentHash, embeddingJSON, len(vectors[0]), time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("failed to cache embedding: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("failed to clear vector: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO embeddings (chunk_id, embedding) VALUES (?, ?)",
		chunkID, string(embeddingJSON),
	); err != nil {
		return fmt.Errorf("failed to store embedding in vector table: %w", err)
	}

	return nil
}

type chunk struct {
	content     string
	startOffset int
	endOffset   int
}

// chunkContent splits content into line-aligned chunks of at most maxSize bytes with a small
// overlap between neighbours.
func chunkContent(content string) []chunk {
	const minSize = 500
	const maxSize = 1000
	const overlap = 50

	var chunks []chunk
	lines := strings.Split(content, "\n")

	var current strings.Builder
	startOffset := 0
	offset := 0

	for _, line := range lines {
		lineLen := len(line) + 1

		if current.Len() > 0 && current.Len()+lineLen > maxSize {
			chunks = append(chunks, chunk{
				content:     strings.TrimSpace(current.String()),
				startOffset: startOffset,
				endOffset:   offset,
			})

			text := current.String()
			current.Reset()
			if len(text) > overlap {
				current.WriteString(text[len(text)-overlap:])
				startOffset = offset - overlap
			} else {
				startOffset = offset
			}
		}

		current.WriteString(line)
		current.WriteString("\n")
		offset += lineLen
	}

	if current.Len() >= minSize || len(chunks) == 0 {
		if text := strings.TrimSpace(current.String()); text != "" {
			chunks = append(chunks, chunk{
				content:     text,
				startOffset: startOffset,
				endOffset:   offset,
			})
		}
	}

	return chunks
}

// pruneDeletedFiles removes files that no longer exist
func (x *Index) pruneDeletedFiles(ctx context.Context, existingFiles []string) (int, error) {
	rows, err := x.db.QueryContext(ctx, "SELECT path FROM files")
	if err != nil {
		return 0, err
	}

	existing := make(map[string]bool, len(existingFiles))
	for _, f := range existingFiles {
		existing[f] = true
	}

	var toDelete []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		if !existing[path] {
			toDelete = append(toDelete, path)
		}
	}
	rows.Close()

	for _, path := range toDelete {
		tx, err := x.db.BeginTx(ctx, nil)
		if err != nil {
			return 0, err
		}
		if err := x.deleteFile(ctx, tx, path); err != nil {
			tx.Rollback()
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
	}

	return len(toDelete), nil
}

// Status returns current index status
func (x *Index) Status() Status {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var status Status
	status.IsDirty = x.isDirty
	status.IsSyncing = x.isSyncing
	status.LastSyncTime = x.lastSyncTime

	x.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&status.TotalFiles)
	x.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&status.TotalChunks)

	total := x.stats.cacheHits + x.stats.cacheMisses
	if total > 0 {
		rate := float64(x.stats.cacheHits) / float64(total)
		status.EmbeddingCacheHitRate = &rate
	}

	return status
}

// Close stops the watcher and closes the database
func (x *Index) Close() error {
	x.logger.Info().Msg("Closing workspace index")

	if x.watcher != nil {
		x.watcher.Stop()
	}

	return x.db.Close()
}

// MarkDirty marks the index as needing sync
func (x *Index) MarkDirty() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.isDirty = true
}

// WorkspacePath returns the indexed directory.
func (x *Index) WorkspacePath() string { return x.workspacePath }
