// Package sqlite implements aicore.Index using pure-Go SQLite with an
// FTS5 full-text index kept in sync by triggers. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	aicore "github.com/nevindra/aicore"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// MaxSearchLimit caps the number of hits one search may return.
const MaxSearchLimit = 50

// IndexOption configures a SQLite Index.
type IndexOption func(*Index)

// WithLogger sets a structured logger for the index.
// When set, the index emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) IndexOption {
	return func(s *Index) { s.logger = l }
}

// Index implements aicore.Index backed by a local SQLite file.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ aicore.Index = (*Index)(nil)

// New creates an Index using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...IndexOption) *Index {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Index{db: db, logger: aicore.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: index opened", "path", dbPath)
	return s
}

// Init applies pragmas and creates the chunks table, the FTS5 virtual
// table, and the triggers that keep them in sync.
func (s *Index) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")

	pragmas := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA foreign_keys=ON`,
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma: %w", err)
		}
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			source_id TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			text TEXT NOT NULL,
			meta_json TEXT,
			updated_ts REAL NOT NULL,
			PRIMARY KEY (source_id, chunk_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			text,
			source_id UNINDEXED,
			chunk_id UNINDEXED,
			content='chunks',
			content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text, source_id, chunk_id)
			VALUES (new.rowid, new.text, new.source_id, new.chunk_id);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text, source_id, chunk_id)
			VALUES ('delete', old.rowid, old.text, old.source_id, old.chunk_id);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text, source_id, chunk_id)
			VALUES ('delete', old.rowid, old.text, old.source_id, old.chunk_id);
			INSERT INTO chunks_fts(rowid, text, source_id, chunk_id)
			VALUES (new.rowid, new.text, new.source_id, new.chunk_id);
		END`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// UpsertChunk inserts or replaces the chunk keyed by (sourceID, chunkID),
// touching updated_ts.
func (s *Index) UpsertChunk(ctx context.Context, sourceID, chunkID, text string, meta map[string]any) error {
	start := time.Now()
	if sourceID == "" || chunkID == "" {
		return fmt.Errorf("upsert chunk: source_id and chunk_id are required")
	}

	var metaJSON *string
	if len(meta) > 0 {
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("upsert chunk: encode meta: %w", err)
		}
		v := string(data)
		metaJSON = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (source_id, chunk_id, text, meta_json, updated_ts)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, chunk_id) DO UPDATE SET
			text = excluded.text,
			meta_json = excluded.meta_json,
			updated_ts = excluded.updated_ts`,
		sourceID, chunkID, text, metaJSON, aicore.NowUnixF(),
	)
	if err != nil {
		s.logger.Error("sqlite: upsert chunk failed", "source_id", sourceID, "chunk_id", chunkID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("%s: upsert chunk: %w", aicore.ErrCodeRAGUpsertException, err)
	}
	s.logger.Debug("sqlite: upsert chunk ok", "source_id", sourceID, "chunk_id", chunkID, "chars", len(text), "duration", time.Since(start))
	return nil
}

// Search performs full-text search over chunks using FTS5, best match
// first. FTS5 rank is negative BM25 (closer to 0 = better); -rank is
// reported as the score, floored at zero.
func (s *Index) Search(ctx context.Context, query string, limit int, sourceFilter string) ([]aicore.Hit, error) {
	start := time.Now()
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	s.logger.Debug("sqlite: search chunks", "query", query, "limit", limit, "source_filter", sourceFilter)

	q := `SELECT c.source_id, c.chunk_id, snippet(chunks_fts, 0, '', '', '...', 32), f.rank
		FROM chunks_fts f
		JOIN chunks c ON c.rowid = f.rowid
		WHERE chunks_fts MATCH ?`
	args := []any{ftsQuery(query)}
	if sourceFilter != "" {
		q += ` AND c.source_id = ?`
		args = append(args, sourceFilter)
	}
	q += ` ORDER BY f.rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var hits []aicore.Hit
	for rows.Next() {
		var h aicore.Hit
		var rank float64
		if err := rows.Scan(&h.SourceID, &h.ChunkID, &h.Snippet, &rank); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.Score = -rank
		if h.Score < 0 {
			h.Score = 0
		}
		hits = append(hits, h)
	}
	s.logger.Debug("sqlite: search chunks ok", "returned", len(hits), "duration", time.Since(start))
	return hits, rows.Err()
}

// DeleteSource removes every chunk belonging to sourceID and returns
// the number of rows deleted.
func (s *Index) DeleteSource(ctx context.Context, sourceID string) (int64, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete source: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("sqlite: delete source ok", "source_id", sourceID, "deleted", n, "duration", time.Since(start))
	return n, nil
}

// Stats reports chunk and distinct-source counts.
func (s *Index) Stats(ctx context.Context) (aicore.IndexStats, error) {
	var st aicore.IndexStats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT source_id) FROM chunks`)
	if err := row.Scan(&st.Chunks, &st.Sources); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Vacuum compacts the database file.
func (s *Index) Vacuum(ctx context.Context) error {
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	s.logger.Debug("sqlite: vacuum ok", "duration", time.Since(start))
	return nil
}

// Close closes the underlying database handle.
func (s *Index) Close() error {
	return s.db.Close()
}

// ftsQuery quotes the raw query for FTS5 so user punctuation cannot
// break MATCH syntax. Each whitespace-separated token becomes a quoted
// term; tokens are OR-ed to favor recall.
func ftsQuery(raw string) string {
	var out []byte
	inTok := false
	for i := 0; i <= len(raw); i++ {
		var ch byte
		if i < len(raw) {
			ch = raw[i]
		}
		isSpace := i == len(raw) || ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
		if isSpace {
			if inTok {
				out = append(out, '"')
				inTok = false
			}
			continue
		}
		if !inTok {
			if len(out) > 0 {
				out = append(out, []byte(" OR ")...)
			}
			out = append(out, '"')
			inTok = true
		}
		if ch == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return `""`
	}
	return string(out)
}
