package aicore

// Pure scheduling functions over Plan values. Nothing here touches disk,
// the clock (beyond checkpoint timestamps), or any lock: callers own the
// plan and its synchronization.

// MaxBatchSize caps the number of tool calls extracted per batch.
const MaxBatchSize = 200

// ReadyToolBatch extracts the next executable batch of tool calls.
// A step is ready when it is a pending tool step whose dependencies are
// all done. The batch is the first batchSize ready steps in plan order;
// remaining reports how many ready steps were left out.
func ReadyToolBatch(plan *Plan, batchSize int) (calls []ToolCall, remaining int, err error) {
	if plan == nil {
		return nil, 0, &ErrNormalize{Code: ErrCodeInvalidPlan, Reason: "plan is nil"}
	}
	if batchSize <= 0 || batchSize > MaxBatchSize {
		return nil, 0, &ErrNormalize{
			Code:    ErrCodeInvalidBatchSize,
			Reason:  "batch_size out of range",
			Details: map[string]any{"batch_size": batchSize, "max": MaxBatchSize},
		}
	}

	done := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.Status == StepDone {
			done[s.ID] = true
		}
	}

	var ready []Step
	for _, s := range plan.Steps {
		if s.Status != StepPending || s.Type != StepTool {
			continue
		}
		ok := true
		for _, d := range s.DependsOn {
			if !done[d] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}

	n := len(ready)
	if n > batchSize {
		n = batchSize
	}
	calls = make([]ToolCall, 0, n)
	for _, s := range ready[:n] {
		tool := s.Tool
		if tool == nil {
			tool = &ToolSpec{Args: map[string]any{}}
		}
		args := tool.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ToolCall{
			Name:   tool.Name,
			Method: tool.Method,
			Args:   args,
			StepID: s.ID,
		})
	}
	return calls, len(ready) - n, nil
}

// ApplyToolResults maps router results back onto plan steps and marks
// them done or failed. Mapping prefers the _step_id correlator; a result
// without one falls back to the first pending tool step with the same
// name and method. Unmatched results are dropped.
func ApplyToolResults(plan *Plan, results []ToolResult) {
	if plan == nil {
		return
	}
	idx := make(map[string]int, len(plan.Steps))
	for i, s := range plan.Steps {
		idx[s.ID] = i
	}

	for _, r := range results {
		target := -1
		if r.StepID != "" {
			if i, ok := idx[r.StepID]; ok {
				target = i
			}
		}
		if target < 0 {
			for i, s := range plan.Steps {
				if s.Status == StepPending && s.Type == StepTool && s.Tool != nil &&
					s.Tool.Name == r.Name && s.Tool.Method == r.Method {
					target = i
					break
				}
			}
		}
		if target < 0 {
			continue
		}
		plan.Steps[target].Result = r.AsMap()
		if r.OK {
			plan.Steps[target].Status = StepDone
		} else {
			plan.Steps[target].Status = StepFailed
		}
	}
}

// AddCheckpoint appends a progress marker to the plan. Summaries are
// truncated to 2000 chars.
func AddCheckpoint(plan *Plan, atStep, summary string) {
	if plan == nil || atStep == "" {
		return
	}
	plan.Checkpoints = append(plan.Checkpoints, Checkpoint{
		AtStep:  atStep,
		TS:      NowUnixF(),
		Summary: truncate(summary, 2000),
	})
}

// StatusSummary is the machine-readable plan progress fed to the
// final-synthesis model call.
type StatusSummary struct {
	PlanID  string `json:"plan_id"`
	Goal    string `json:"goal"`
	Total   int    `json:"total"`
	Done    int    `json:"done"`
	Failed  int    `json:"failed"`
	Pending int    `json:"pending"`
}

// Summarize counts step states for the status summary.
func Summarize(plan *Plan) StatusSummary {
	if plan == nil {
		return StatusSummary{}
	}
	sum := StatusSummary{PlanID: plan.PlanID, Goal: plan.Goal, Total: len(plan.Steps)}
	for _, s := range plan.Steps {
		switch s.Status {
		case StepDone:
			sum.Done++
		case StepFailed:
			sum.Failed++
		case StepPending:
			sum.Pending++
		}
	}
	return sum
}

// AsMap converts a ToolResult to its generic JSON document form, as
// attached to a step's result field.
func (r ToolResult) AsMap() map[string]any {
	m := map[string]any{"ok": r.OK}
	if r.Name != "" {
		m["name"] = r.Name
	}
	if r.Method != "" {
		m["method"] = r.Method
	}
	if r.Result != nil {
		m["result"] = r.Result
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Details != nil {
		m["details"] = r.Details
	}
	if r.StepID != "" {
		m["_step_id"] = r.StepID
	}
	return m
}
