package aicore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Context assembly defaults. All are hard budgets: the assembler is
// deterministic and never calls the model.
const (
	defaultMaxEphemeralChars = 18000
	defaultMaxEpisodicTurns  = 20
	defaultRAGHits           = 8
	defaultRAGSnippetChars   = 900
)

// ContextPack is the bundle handed to the orchestrator before planning.
type ContextPack struct {
	Task        string         `json:"task"`
	SessionID   string         `json:"session_id"`
	Episodic    []Turn         `json:"episodic"`
	Semantic    []Hit          `json:"semantic"`
	ContextText string         `json:"context_text"`
	Budget      map[string]int `json:"budget"`
}

// SummaryChunk identifies the distilled chunk written by Finalize.
type SummaryChunk struct {
	SourceID string `json:"source_id"`
	ChunkID  string `json:"chunk_id"`
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithAssemblerLogger sets a structured logger.
func WithAssemblerLogger(l *slog.Logger) AssemblerOption {
	return func(a *Assembler) { a.logger = l }
}

// WithEphemeralBudget sets the hard character budget for context text.
func WithEphemeralBudget(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.maxEphemeralChars = n
		}
	}
}

// WithEpisodicTurns sets how many recent turns are included.
func WithEpisodicTurns(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.maxEpisodicTurns = n
		}
	}
}

// WithRAGHits sets how many semantic hits are retrieved.
func WithRAGHits(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.ragHits = n
		}
	}
}

// WithRAGSnippetChars caps each retrieved snippet.
func WithRAGSnippetChars(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.ragSnippetChars = n
		}
	}
}

// Assembler composes the prompt context for one turn from the episodic
// conversation log and the semantic index, then distills finished turns
// back into both.
type Assembler struct {
	log   ConversationLog
	index Index

	maxEphemeralChars int
	maxEpisodicTurns  int
	ragHits           int
	ragSnippetChars   int

	logger *slog.Logger
}

// NewAssembler creates an Assembler over the given log and index.
func NewAssembler(log ConversationLog, index Index, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		log:               log,
		index:             index,
		maxEphemeralChars: defaultMaxEphemeralChars,
		maxEpisodicTurns:  defaultMaxEpisodicTurns,
		ragHits:           defaultRAGHits,
		ragSnippetChars:   defaultRAGSnippetChars,
		logger:            NopLogger(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// BuildContext assembles the bounded context text for task. Retrieval
// failures degrade to an empty semantic section rather than failing the
// turn. When the composed text exceeds the budget, the tail is kept so
// the most recent conversation and snippets survive.
func (a *Assembler) BuildContext(ctx context.Context, task, sessionID string) (*ContextPack, error) {
	start := time.Now()
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("build context: task must be a non-empty string")
	}

	pack := &ContextPack{
		Task:      task,
		SessionID: sessionID,
		Episodic:  []Turn{},
		Semantic:  []Hit{},
		Budget: map[string]int{
			"max_ephemeral_chars": a.maxEphemeralChars,
			"max_episodic_turns":  a.maxEpisodicTurns,
			"rag_hits":            a.ragHits,
			"rag_snippet_chars":   a.ragSnippetChars,
		},
	}

	turns, err := a.log.GetConversation(sessionID, a.maxEpisodicTurns)
	if err != nil {
		return nil, fmt.Errorf("build context: episodic read: %w", err)
	}
	pack.Episodic = turns

	hits, err := a.index.Search(ctx, task, a.ragHits, "")
	if err != nil {
		a.logger.Debug("context: semantic search failed", "error", err)
	} else {
		for _, h := range hits {
			h.Snippet = truncate(h.Snippet, a.ragSnippetChars)
			pack.Semantic = append(pack.Semantic, h)
		}
	}

	var parts []string
	parts = append(parts, "### TASK", task)

	parts = append(parts, "\n### EPISODIC (recent conversation)")
	for _, t := range turns {
		parts = append(parts, fmt.Sprintf("- %s: %s", t.Role, t.Message))
	}

	parts = append(parts, "\n### SEMANTIC (retrieved knowledge snippets)")
	if len(pack.Semantic) > 0 {
		for _, h := range pack.Semantic {
			parts = append(parts, fmt.Sprintf("- [%s/%s] %s", h.SourceID, h.ChunkID, h.Snippet))
		}
	} else {
		parts = append(parts, "- (none)")
	}

	text := strings.Join(parts, "\n")
	if len(text) > a.maxEphemeralChars {
		text = text[len(text)-a.maxEphemeralChars:]
	}
	pack.ContextText = text

	a.logger.Debug("context: built", "session", sessionID, "episodic", len(turns), "semantic", len(pack.Semantic), "chars", len(text), "duration", time.Since(start))
	return pack, nil
}

// Finalize distills a finished turn: appends the assistant turn to the
// conversation log and upserts a deterministic summary chunk into the
// semantic index under source "task_summaries". The chunk id is derived
// from (session, date, task, output prefix) so re-runs are idempotent.
func (a *Assembler) Finalize(ctx context.Context, task, output, sessionID, status string) (*SummaryChunk, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("finalize: task must be a non-empty string")
	}
	if status == "" {
		status = "ok"
	}

	if err := a.log.AddTurn(sessionID, "assistant", output, map[string]any{"status": status}); err != nil {
		return nil, fmt.Errorf("finalize: log turn: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	chunkID := shaID(fmt.Sprintf("%s|%s|%s|%s", sessionID, date, task, truncate(output, 2000)), 24)

	meta := map[string]any{
		"session_id": sessionID,
		"status":     status,
		"date":       date,
		"ts":         NowUnixF(),
		"kind":       "task_summary",
	}

	if err := a.index.UpsertChunk(ctx, "task_summaries", chunkID, distill(task, output), meta); err != nil {
		return nil, fmt.Errorf("finalize: upsert summary: %w", err)
	}

	return &SummaryChunk{SourceID: "task_summaries", ChunkID: chunkID}, nil
}

// distill builds the deterministic summary text: the task plus the head
// and tail of the output, markdown stripped, capped at 5000 chars.
func distill(task, output string) string {
	const headN, tailN, capN = 1200, 1200, 5000

	out := MarkdownToPlain(strings.TrimSpace(output))
	head := truncate(out, headN)
	tail := ""
	if len(out) > tailN {
		tail = out[len(out)-tailN:]
	}

	parts := []string{"### TASK", task, "", "### RESULT (distilled)", head}
	if tail != "" && tail != head {
		parts = append(parts, "", "### RESULT (tail)", tail)
	}
	return truncate(strings.Join(parts, "\n"), capN)
}
