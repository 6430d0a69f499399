package aicore

import (
	"context"
	"strings"
	"testing"
)

func TestBuildContextSections(t *testing.T) {
	log := newFakeLog()
	log.AddTurn("s1", "user", "hello", nil)
	log.AddTurn("s1", "assistant", "hi there", nil)
	idx := newFakeIndex()
	idx.hits = []Hit{{SourceID: "task_summaries", ChunkID: "c1", Snippet: "prior summary", Score: 1.5}}

	asm := NewAssembler(log, idx)
	pack, err := asm.BuildContext(context.Background(), "new task", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := pack.ContextText
	for _, want := range []string{"### TASK", "new task", "### EPISODIC", "- user: hello", "- assistant: hi there", "### SEMANTIC", "[task_summaries/c1] prior summary"} {
		if !strings.Contains(text, want) {
			t.Errorf("context text missing %q:\n%s", want, text)
		}
	}
	if len(pack.Episodic) != 2 || len(pack.Semantic) != 1 {
		t.Errorf("wrong pack shape: %d episodic, %d semantic", len(pack.Episodic), len(pack.Semantic))
	}
}

func TestBuildContextEmptySemantic(t *testing.T) {
	asm := NewAssembler(newFakeLog(), newFakeIndex())
	pack, err := asm.BuildContext(context.Background(), "task", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(pack.ContextText, "- (none)") {
		t.Error("empty semantic section should render the (none) marker")
	}
}

func TestBuildContextSearchFailureDegrades(t *testing.T) {
	idx := newFakeIndex()
	idx.searchErr = errSentinel("index down")
	asm := NewAssembler(newFakeLog(), idx)
	pack, err := asm.BuildContext(context.Background(), "task", "s1")
	if err != nil {
		t.Fatalf("retrieval failure must not fail the build: %v", err)
	}
	if len(pack.Semantic) != 0 {
		t.Error("failed search should yield an empty semantic list")
	}
}

func TestBuildContextEmptyTask(t *testing.T) {
	asm := NewAssembler(newFakeLog(), newFakeIndex())
	if _, err := asm.BuildContext(context.Background(), "   ", "s1"); err == nil {
		t.Fatal("blank task must fail")
	}
}

func TestBuildContextBudgetKeepsTail(t *testing.T) {
	log := newFakeLog()
	for i := 0; i < 5; i++ {
		log.AddTurn("s1", "user", strings.Repeat("x", 400), nil)
	}
	log.AddTurn("s1", "user", "LAST_TURN_MARKER", nil)

	asm := NewAssembler(log, newFakeIndex(), WithEphemeralBudget(500))
	pack, err := asm.BuildContext(context.Background(), "task", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pack.ContextText) != 500 {
		t.Errorf("over-budget text should be cut to exactly the budget, got %d", len(pack.ContextText))
	}
	if !strings.Contains(pack.ContextText, "LAST_TURN_MARKER") {
		t.Error("the tail must survive the cut")
	}
	if strings.Contains(pack.ContextText, "### TASK") {
		t.Error("the head is what gets dropped")
	}
}

func TestBuildContextEpisodicLimit(t *testing.T) {
	log := newFakeLog()
	for i := 0; i < 30; i++ {
		log.AddTurn("s1", "user", "m", nil)
	}
	asm := NewAssembler(log, newFakeIndex(), WithEpisodicTurns(5))
	pack, err := asm.BuildContext(context.Background(), "task", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pack.Episodic) != 5 {
		t.Errorf("expected 5 episodic turns, got %d", len(pack.Episodic))
	}
}

func TestBuildContextSnippetCap(t *testing.T) {
	idx := newFakeIndex()
	idx.hits = []Hit{{SourceID: "s", ChunkID: "c", Snippet: strings.Repeat("y", 2000)}}
	asm := NewAssembler(newFakeLog(), idx, WithRAGSnippetChars(100))
	pack, err := asm.BuildContext(context.Background(), "task", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pack.Semantic[0].Snippet) != 100 {
		t.Errorf("snippet should be capped at 100, got %d", len(pack.Semantic[0].Snippet))
	}
}

func TestFinalizeWritesLogAndIndex(t *testing.T) {
	log := newFakeLog()
	idx := newFakeIndex()
	asm := NewAssembler(log, idx)

	chunk, err := asm.Finalize(context.Background(), "the task", "the answer", "s1", "ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.SourceID != "task_summaries" || chunk.ChunkID == "" {
		t.Errorf("wrong chunk identity: %+v", chunk)
	}

	turns, _ := log.GetConversation("s1", 0)
	if len(turns) != 1 || turns[0].Role != "assistant" || turns[0].Message != "the answer" {
		t.Errorf("assistant turn not logged: %+v", turns)
	}

	text, ok := idx.upserts["task_summaries/"+chunk.ChunkID]
	if !ok {
		t.Fatal("summary chunk not upserted")
	}
	if !strings.Contains(text, "the task") || !strings.Contains(text, "the answer") {
		t.Errorf("distilled text should carry task and result: %q", text)
	}
}

func TestFinalizeDeterministicChunkID(t *testing.T) {
	asm := NewAssembler(newFakeLog(), newFakeIndex())
	a, err := asm.Finalize(context.Background(), "task", "output", "s1", "ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := asm.Finalize(context.Background(), "task", "output", "s1", "ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ChunkID != b.ChunkID {
		t.Error("re-running the same turn the same day must reuse the chunk id")
	}
}

func TestFinalizeEmptyTask(t *testing.T) {
	asm := NewAssembler(newFakeLog(), newFakeIndex())
	if _, err := asm.Finalize(context.Background(), " ", "out", "s1", "ok"); err == nil {
		t.Fatal("blank task must fail")
	}
}
