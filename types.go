package aicore

// StepType classifies a plan step.
type StepType string

const (
	StepTool StepType = "tool"
	StepLLM  StepType = "llm"
	StepNote StepType = "note"
)

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// PlanStatus is the lifecycle state of a whole plan.
type PlanStatus string

const (
	PlanNew             PlanStatus = "new"
	PlanRunning         PlanStatus = "running"
	PlanDone            PlanStatus = "done"
	PlanFailed          PlanStatus = "failed"
	PlanFailedNormalize PlanStatus = "failed_normalize"
)

// ToolSpec names the provider call a tool step performs.
type ToolSpec struct {
	Name   string         `json:"name"`
	Method string         `json:"method"`
	Args   map[string]any `json:"args"`
}

// Step is one unit of work inside a plan. Tool steps carry a ToolSpec,
// llm steps carry a prompt, note steps carry neither.
type Step struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Type      StepType       `json:"type"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Tool      *ToolSpec      `json:"tool,omitempty"`
	Prompt    string         `json:"prompt,omitempty"`
	Status    StepStatus     `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
}

// Checkpoint records a progress marker inside a plan.
type Checkpoint struct {
	AtStep  string  `json:"at_step"`
	TS      float64 `json:"ts"`
	Summary string  `json:"summary"`
}

// Plan is a DAG of steps derived from a model response or loaded from disk.
// Step order is significant: the scheduler walks steps in insertion order.
type Plan struct {
	PlanID      string       `json:"plan_id"`
	Goal        string       `json:"goal"`
	CreatedTS   float64      `json:"created_ts"`
	Status      PlanStatus   `json:"status"`
	Steps       []Step       `json:"steps"`
	Checkpoints []Checkpoint `json:"checkpoints,omitempty"`
}

// ToolCall is one dispatchable invocation extracted from a ready tool step.
// StepID correlates the call back to its owning step when results are applied.
type ToolCall struct {
	Name   string         `json:"name"`
	Method string         `json:"method"`
	Args   map[string]any `json:"args"`
	StepID string         `json:"_step_id,omitempty"`
}

// ToolResult is the uniform outcome envelope of a routed tool call.
// OK=false carries a machine-readable Error code plus optional Details.
type ToolResult struct {
	OK      bool           `json:"ok"`
	Name    string         `json:"name,omitempty"`
	Method  string         `json:"method,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"_step_id,omitempty"`
}

// Turn is one conversation-log entry.
type Turn struct {
	TS      float64        `json:"ts"`
	Role    string         `json:"role"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Hit is one semantic-search result. Score follows BM25 polarity after
// negation: higher is better, floored at zero.
type Hit struct {
	SourceID string  `json:"source_id"`
	ChunkID  string  `json:"chunk_id"`
	Snippet  string  `json:"snippet"`
	Score    float64 `json:"score"`
}

// ChatMessage is a single message in a chat-completions exchange.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system-role chat message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user-role chat message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage creates an assistant-role chat message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// Timing collects per-phase durations of one turn, in milliseconds.
type Timing struct {
	Total        int64 `json:"total"`
	MemoryAdd    int64 `json:"memory_add"`
	ContextBuild int64 `json:"context_build"`
	LLMPlan      int64 `json:"llm_plan"`
	PlannerTools int64 `json:"planner_tools"`
	LLMFinal     int64 `json:"llm_final"`
}

// CheckpointReceipt reports the outcome of the last checkpoint write of a turn.
type CheckpointReceipt struct {
	OK     bool           `json:"ok"`
	Status string         `json:"status"`
	Path   string         `json:"path,omitempty"`
	Bytes  int            `json:"bytes,omitempty"`
	PlanID string         `json:"plan_id,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// Result is the full response of one orchestrated turn. Plan is the
// serialized plan document exactly as checkpointed, which for a
// failed_normalize turn is a diagnostic document rather than a Plan.
type Result struct {
	OK             bool               `json:"ok"`
	SessionID      string             `json:"session_id"`
	Final          string             `json:"final"`
	ToolResults    []ToolResult       `json:"tool_results"`
	Plan           map[string]any     `json:"plan,omitempty"`
	Error          string             `json:"error,omitempty"`
	Details        map[string]any     `json:"details,omitempty"`
	TimingMS       Timing             `json:"timing_ms"`
	ToolCallsCount int                `json:"tool_calls_count"`
	ToolBatches    int                `json:"tool_batches"`
	Checkpoint     *CheckpointReceipt `json:"checkpoint,omitempty"`
}
