package aicore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Hard limits applied during plan normalization.
const (
	MaxPlanSteps = 10000
	MaxTitleLen  = 200
	MaxPromptLen = 8000
)

// NewPlan creates an empty plan for the given goal with a deterministic id.
func NewPlan(goal string) (*Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, &ErrNormalize{Code: "INVALID_GOAL", Reason: "goal must be a non-empty string"}
	}
	ts := NowUnixF()
	return &Plan{
		PlanID:      shaID(fmt.Sprintf("%s|%f", goal, ts), 16),
		Goal:        goal,
		CreatedTS:   ts,
		Status:      PlanNew,
		Steps:       []Step{},
		Checkpoints: []Checkpoint{},
	}, nil
}

// NormalizePlan validates and canonicalizes an arbitrary plan object,
// typically parsed from a model response. Two dialects are accepted:
// a full plan carrying a "steps" array, and the compact
// {"tool_calls": [...], "final": "..."} form which becomes one tool step
// per call plus a terminal note step depending on all of them.
func NormalizePlan(obj map[string]any, goalFallback string) (*Plan, error) {
	if obj == nil {
		return nil, &ErrNormalize{Code: ErrCodeUnsupportedPlanFormat, Reason: "plan object is nil"}
	}
	if _, ok := obj["steps"]; ok {
		return normalizeFullPlan(obj, goalFallback)
	}
	if _, ok := obj["tool_calls"]; ok {
		return normalizeToolCallsPlan(obj, goalFallback)
	}
	return nil, &ErrNormalize{
		Code:    ErrCodeUnsupportedPlanFormat,
		Reason:  "object carries neither steps nor tool_calls",
		Details: map[string]any{"keys": mapKeys(obj)},
	}
}

func normalizeFullPlan(obj map[string]any, goalFallback string) (*Plan, error) {
	stepsIn, ok := obj["steps"].([]any)
	if !ok {
		return nil, &ErrNormalize{Code: ErrCodeInvalidSteps, Reason: "steps is not a list"}
	}
	if len(stepsIn) > MaxPlanSteps {
		return nil, &ErrNormalize{
			Code:    ErrCodeTooManySteps,
			Reason:  "step count exceeds hard limit",
			Details: map[string]any{"max": MaxPlanSteps, "got": len(stepsIn)},
		}
	}

	planID := asString(obj["plan_id"])
	if planID == "" {
		planID = shaID(truncate(jsonString(obj), 2000), 16)
	}
	goal := strings.TrimSpace(asString(obj["goal"]))
	if goal == "" {
		goal = strings.TrimSpace(goalFallback)
	}
	if goal == "" {
		goal = "task"
	}
	createdTS := asFloat(obj["created_ts"])
	if createdTS == 0 {
		createdTS = NowUnixF()
	}
	status := PlanStatus(asString(obj["status"]))
	switch status {
	case PlanNew, PlanRunning, PlanDone, PlanFailed, PlanFailedNormalize:
	default:
		status = PlanNew
	}

	steps := make([]Step, 0, len(stepsIn))
	seen := make(map[string]bool, len(stepsIn))
	for i, raw := range stepsIn {
		s, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := strings.TrimSpace(asString(s["title"]))
		if title == "" {
			title = fmt.Sprintf("step-%d", i)
		}
		title = truncate(title, MaxTitleLen)

		sid := asString(s["id"])
		if sid == "" {
			sid = shaID(fmt.Sprintf("%s|%d|%s", planID, i, truncate(title, 50)), 16)
		}
		if seen[sid] {
			sid = shaID(fmt.Sprintf("%s%d", sid, i), 16)
		}
		seen[sid] = true

		stype := StepType(asString(s["type"]))
		switch stype {
		case StepTool, StepLLM, StepNote:
		default:
			stype = StepNote
		}

		var deps []string
		if rawDeps, ok := s["depends_on"].([]any); ok {
			for _, d := range rawDeps {
				switch v := d.(type) {
				case string:
					deps = append(deps, v)
				case float64:
					deps = append(deps, trimFloat(v))
				case int:
					deps = append(deps, fmt.Sprintf("%d", v))
				}
			}
		}

		var tool *ToolSpec
		if stype == StepTool {
			tool = normalizeToolSpec(s["tool"])
		}
		var prompt string
		if stype == StepLLM {
			prompt = truncate(strings.TrimSpace(asString(s["prompt"])), MaxPromptLen)
		}

		sstatus := StepStatus(asString(s["status"]))
		switch sstatus {
		case StepPending, StepDone, StepFailed, StepSkipped:
		default:
			sstatus = StepPending
		}

		var result map[string]any
		if r, ok := s["result"].(map[string]any); ok {
			result = r
		}

		steps = append(steps, Step{
			ID:        sid,
			Title:     title,
			Type:      stype,
			DependsOn: deps,
			Tool:      tool,
			Prompt:    prompt,
			Status:    sstatus,
			Result:    result,
		})
	}

	pruneUnknownDeps(steps, seen)
	if cyc := findCycle(steps); cyc != nil {
		return nil, &ErrNormalize{
			Code:    ErrCodeInvalidSteps,
			Reason:  "dependency cycle",
			Details: map[string]any{"cycle": cyc},
		}
	}

	return &Plan{
		PlanID:      planID,
		Goal:        goal,
		CreatedTS:   createdTS,
		Status:      status,
		Steps:       steps,
		Checkpoints: normalizeCheckpoints(obj["checkpoints"]),
	}, nil
}

func normalizeToolCallsPlan(obj map[string]any, goalFallback string) (*Plan, error) {
	goal := strings.TrimSpace(asString(obj["goal"]))
	if goal == "" {
		goal = strings.TrimSpace(goalFallback)
	}
	if goal == "" {
		goal = "task"
	}
	plan, err := NewPlan(goal)
	if err != nil {
		return nil, err
	}

	tc, _ := obj["tool_calls"].([]any)

	var steps []Step
	var toolIDs []string
	for i, raw := range tc {
		tool := normalizeToolSpec(raw)
		id := shaID(fmt.Sprintf("%s|tool|%d|%s|%s", plan.PlanID, i, tool.Name, tool.Method), 16)
		toolIDs = append(toolIDs, id)
		steps = append(steps, Step{
			ID:     id,
			Title:  fmt.Sprintf("tool:%s:%s", tool.Name, tool.Method),
			Type:   StepTool,
			Tool:   tool,
			Status: StepPending,
		})
	}

	finalText := strings.TrimSpace(asString(obj["final"]))
	final := Step{
		ID:        shaID(fmt.Sprintf("%s|note|final", plan.PlanID), 16),
		Title:     "final",
		Type:      StepNote,
		DependsOn: toolIDs,
		Status:    StepPending,
	}
	if len(steps) == 0 {
		final.Status = StepDone
	}
	if finalText != "" {
		final.Result = map[string]any{"final": finalText}
	}
	steps = append(steps, final)

	plan.Steps = steps
	return plan, nil
}

// normalizeToolSpec coerces an arbitrary value into a ToolSpec with
// trimmed string name/method and a non-nil args map.
func normalizeToolSpec(v any) *ToolSpec {
	obj, _ := v.(map[string]any)
	spec := &ToolSpec{Args: map[string]any{}}
	if obj == nil {
		return spec
	}
	if n, ok := obj["name"].(string); ok {
		spec.Name = strings.TrimSpace(n)
	}
	if m, ok := obj["method"].(string); ok {
		spec.Method = strings.TrimSpace(m)
	}
	if a, ok := obj["args"].(map[string]any); ok {
		spec.Args = a
	}
	return spec
}

func normalizeCheckpoints(v any) []Checkpoint {
	raw, ok := v.([]any)
	if !ok {
		return []Checkpoint{}
	}
	cps := make([]Checkpoint, 0, len(raw))
	for _, r := range raw {
		obj, ok := r.(map[string]any)
		if !ok {
			continue
		}
		cps = append(cps, Checkpoint{
			AtStep:  asString(obj["at_step"]),
			TS:      asFloat(obj["ts"]),
			Summary: truncate(asString(obj["summary"]), 2000),
		})
	}
	return cps
}

// pruneUnknownDeps drops depends_on entries that reference no step,
// including ids rewritten during duplicate resolution.
func pruneUnknownDeps(steps []Step, known map[string]bool) {
	for i := range steps {
		if len(steps[i].DependsOn) == 0 {
			continue
		}
		kept := steps[i].DependsOn[:0]
		for _, d := range steps[i].DependsOn {
			if known[d] {
				kept = append(kept, d)
			}
		}
		steps[i].DependsOn = kept
	}
}

// findCycle returns the ids of one dependency cycle, or nil when the
// step graph is acyclic. Kahn's algorithm over depends_on edges.
func findCycle(steps []Step) []string {
	indeg := make(map[string]int, len(steps))
	out := make(map[string][]string, len(steps))
	for _, s := range steps {
		if _, ok := indeg[s.ID]; !ok {
			indeg[s.ID] = 0
		}
		for _, d := range s.DependsOn {
			out[d] = append(out[d], s.ID)
			indeg[s.ID]++
		}
	}
	queue := make([]string, 0, len(steps))
	for _, s := range steps {
		if indeg[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}
	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, next := range out[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if removed == len(steps) {
		return nil
	}
	var cyc []string
	for _, s := range steps {
		if indeg[s.ID] > 0 {
			cyc = append(cyc, s.ID)
		}
	}
	return cyc
}

// PlanDoc converts a plan into its generic JSON document form, as
// persisted inside a checkpoint state.
func PlanDoc(p *Plan) map[string]any {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc
}

// PlanFromDoc parses a generic plan document back into a Plan.
func PlanFromDoc(doc map[string]any) (*Plan, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal plan doc: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal plan doc: %w", err)
	}
	return &p, nil
}

// --- small coercion helpers ---

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
