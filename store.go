package aicore

import "context"

// Index abstracts the semantic chunk store used for retrieval during
// context assembly. Implemented by store/sqlite (embedded, FTS5) and
// store/postgres (shared server, tsvector).
type Index interface {
	// UpsertChunk inserts or replaces the chunk keyed by (sourceID, chunkID).
	UpsertChunk(ctx context.Context, sourceID, chunkID, text string, meta map[string]any) error
	// Search returns up to limit hits for query, best first.
	// sourceFilter restricts results to one source when non-empty.
	Search(ctx context.Context, query string, limit int, sourceFilter string) ([]Hit, error)
	// DeleteSource removes every chunk belonging to sourceID.
	DeleteSource(ctx context.Context, sourceID string) (int64, error)
	// Stats reports chunk and source counts.
	Stats(ctx context.Context) (IndexStats, error)

	Init(ctx context.Context) error
	Close() error
}

// IndexStats summarizes index contents.
type IndexStats struct {
	Chunks  int64 `json:"chunks"`
	Sources int64 `json:"sources"`
}
