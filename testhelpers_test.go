package aicore

import (
	"context"
	"fmt"
	"sync"
)

// fakeLog is an in-memory ConversationLog.
type fakeLog struct {
	mu      sync.Mutex
	turns   map[string][]Turn
	addErr  error
	readErr error
}

func newFakeLog() *fakeLog {
	return &fakeLog{turns: map[string][]Turn{}}
}

func (f *fakeLog) AddTurn(sessionID, role, message string, meta map[string]any) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns[sessionID] = append(f.turns[sessionID], Turn{TS: NowUnixF(), Role: role, Message: message, Meta: meta})
	return nil
}

func (f *fakeLog) GetConversation(sessionID string, limit int) ([]Turn, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	turns := f.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (f *fakeLog) Clear(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.turns, sessionID)
	return nil
}

// fakeIndex is an in-memory Index returning canned hits.
type fakeIndex struct {
	mu        sync.Mutex
	hits      []Hit
	searchErr error
	upserts   map[string]string // source/chunk -> text
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserts: map[string]string{}}
}

func (f *fakeIndex) UpsertChunk(_ context.Context, sourceID, chunkID, text string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[sourceID+"/"+chunkID] = text
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, limit int, _ string) ([]Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) DeleteSource(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeIndex) Stats(context.Context) (IndexStats, error)           { return IndexStats{}, nil }
func (f *fakeIndex) Init(context.Context) error                          { return nil }
func (f *fakeIndex) Close() error                                        { return nil }

// scriptedProvider returns canned responses in call order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.calls)
	p.calls = append(p.calls, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return ChatResponse{}, p.errs[i]
	}
	if i < len(p.responses) {
		return ChatResponse{Content: p.responses[i]}, nil
	}
	return ChatResponse{Content: `{"final":"fallback"}`}, nil
}

// memCheckpoints is an in-memory CheckpointStore.
type memCheckpoints struct {
	mu      sync.Mutex
	states  map[string]*PlanState
	saveErr error
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{states: map[string]*PlanState{}}
}

func (m *memCheckpoints) Wrap(plan map[string]any, status string, cursors map[string]any) (*PlanState, error) {
	if plan == nil {
		return nil, &ErrCheckpoint{Code: ErrCodeSchemaMismatch, Reason: "plan must be an object"}
	}
	planID, _ := plan["plan_id"].(string)
	if planID == "" {
		planID = "plan"
	}
	goal, _ := plan["goal"].(string)
	if cursors == nil {
		cursors = map[string]any{}
	}
	return &PlanState{
		SchemaVersion: PlanStateVersion,
		PlanID:        planID,
		Goal:          goal,
		Status:        status,
		Cursors:       cursors,
		Plan:          plan,
	}, nil
}

func (m *memCheckpoints) Save(state *PlanState) (SaveReceipt, error) {
	if m.saveErr != nil {
		return SaveReceipt{}, m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.PlanID] = state
	return SaveReceipt{Path: "/mem/" + state.PlanID + ".json", Bytes: 1}, nil
}

func (m *memCheckpoints) Load(planID string) (*PlanState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[planID]
	if !ok {
		return nil, &ErrCheckpoint{Code: ErrCodeNotFound, Reason: planID}
	}
	return st, nil
}

func (m *memCheckpoints) Exists(planID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[planID]
	return ok
}

func (m *memCheckpoints) Delete(planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, planID)
	return nil
}

var (
	_ ConversationLog = (*fakeLog)(nil)
	_ Index           = (*fakeIndex)(nil)
	_ Provider        = (*scriptedProvider)(nil)
	_ CheckpointStore = (*memCheckpoints)(nil)
)

// errSentinel builds a distinct error for fault injection.
func errSentinel(msg string) error { return fmt.Errorf("%s", msg) }
