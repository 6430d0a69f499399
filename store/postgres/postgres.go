// Package postgres implements aicore.Index using PostgreSQL with
// tsvector full-text search. It serves deployments that already run a
// shared database server; the sqlite package remains the default for
// local-first installs.
//
// The Index accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	aicore "github.com/nevindra/aicore"
)

// MaxSearchLimit caps the number of hits one search may return.
const MaxSearchLimit = 50

// IndexOption configures a PostgreSQL Index.
type IndexOption func(*Index)

// WithLogger sets a structured logger for the index.
func WithLogger(l *slog.Logger) IndexOption {
	return func(s *Index) { s.logger = l }
}

// WithTextSearchConfig sets the text search configuration used for
// to_tsvector/websearch_to_tsquery. Default "english".
func WithTextSearchConfig(cfg string) IndexOption {
	return func(s *Index) {
		if cfg != "" {
			s.tsConfig = cfg
		}
	}
}

// Index implements aicore.Index backed by PostgreSQL.
type Index struct {
	pool     *pgxpool.Pool
	tsConfig string
	logger   *slog.Logger
}

var _ aicore.Index = (*Index)(nil)

// New creates an Index using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...IndexOption) *Index {
	s := &Index{pool: pool, tsConfig: "english", logger: aicore.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the chunks table and its generated tsvector index.
func (s *Index) Init(ctx context.Context) error {
	start := time.Now()
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			source_id TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			text TEXT NOT NULL,
			meta_json JSONB,
			updated_ts DOUBLE PRECISION NOT NULL,
			tsv tsvector GENERATED ALWAYS AS (to_tsvector('%s', text)) STORED,
			PRIMARY KEY (source_id, chunk_id)
		)`, s.tsConfig),
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN(tsv)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	s.logger.Info("postgres: init completed", "duration", time.Since(start))
	return nil
}

// UpsertChunk inserts or replaces the chunk keyed by (sourceID, chunkID).
func (s *Index) UpsertChunk(ctx context.Context, sourceID, chunkID, text string, meta map[string]any) error {
	start := time.Now()
	if sourceID == "" || chunkID == "" {
		return fmt.Errorf("upsert chunk: source_id and chunk_id are required")
	}

	var metaJSON []byte
	if len(meta) > 0 {
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("upsert chunk: encode meta: %w", err)
		}
		metaJSON = data
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chunks (source_id, chunk_id, text, meta_json, updated_ts)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source_id, chunk_id) DO UPDATE SET
			text = EXCLUDED.text,
			meta_json = EXCLUDED.meta_json,
			updated_ts = EXCLUDED.updated_ts`,
		sourceID, chunkID, text, metaJSON, aicore.NowUnixF(),
	)
	if err != nil {
		s.logger.Error("postgres: upsert chunk failed", "source_id", sourceID, "chunk_id", chunkID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("%s: upsert chunk: %w", aicore.ErrCodeRAGUpsertException, err)
	}
	s.logger.Debug("postgres: upsert chunk ok", "source_id", sourceID, "chunk_id", chunkID, "duration", time.Since(start))
	return nil
}

// Search performs full-text search ranked by ts_rank_cd, best first.
func (s *Index) Search(ctx context.Context, query string, limit int, sourceFilter string) ([]aicore.Hit, error) {
	start := time.Now()
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	q := fmt.Sprintf(`SELECT source_id, chunk_id, LEFT(text, 1024),
			ts_rank_cd(tsv, websearch_to_tsquery('%s', $1))
		FROM chunks
		WHERE tsv @@ websearch_to_tsquery('%s', $1)`, s.tsConfig, s.tsConfig)
	args := []any{query}
	if sourceFilter != "" {
		q += ` AND source_id = $2`
		args = append(args, sourceFilter)
	}
	q += fmt.Sprintf(` ORDER BY 4 DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var hits []aicore.Hit
	for rows.Next() {
		var h aicore.Hit
		if err := rows.Scan(&h.SourceID, &h.ChunkID, &h.Snippet, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	s.logger.Debug("postgres: search chunks ok", "returned", len(hits), "duration", time.Since(start))
	return hits, nil
}

// DeleteSource removes every chunk belonging to sourceID.
func (s *Index) DeleteSource(ctx context.Context, sourceID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete source: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats reports chunk and distinct-source counts.
func (s *Index) Stats(ctx context.Context) (aicore.IndexStats, error) {
	var st aicore.IndexStats
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT source_id) FROM chunks`)
	if err := row.Scan(&st.Chunks, &st.Sources); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Close is a no-op: the pool is externally owned.
func (s *Index) Close() error { return nil }
