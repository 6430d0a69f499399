package aicore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Model invocation budgets for one turn.
const (
	planTemperature  = 0.2
	planMaxTokens    = 1800
	defaultBatchSize = 25
)

// planPrompt demands one of the two accepted plan dialects and nothing
// else. Everything after parsing goes through NormalizePlan anyway; the
// prompt just raises the odds of a clean first parse.
const planPrompt = "Output STRICT JSON ONLY. Allowed formats:\n" +
	"A) {\"goal\":str, \"steps\":[{\"id\":str(optional),\"title\":str,\"type\":\"tool\"|\"llm\"|\"note\",\"depends_on\":[str...],\"tool\":{name,method,args} (tool),\"prompt\":str (llm)}...]}\n" +
	"B) {\"tool_calls\":[{\"name\":str,\"method\":str,\"args\":object}...],\"final\":str}\n" +
	"No markdown. No extra text."

// finalPrompt demands the synthesis envelope only.
const finalPrompt = "Return STRICT JSON ONLY: {\"final\": str}. No extra keys. No extra text."

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets a structured logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithOrchestratorTracer sets a tracer; each turn opens a span.
func WithOrchestratorTracer(t Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithBatchSize sets how many ready tool calls one batch may carry.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 && n <= MaxBatchSize {
			o.batchSize = n
		}
	}
}

// Orchestrator sequences one conversational turn: context build, plan
// elicitation (or resume), dependency-ordered tool batches, final
// synthesis, and checkpoints on every phase transition.
type Orchestrator struct {
	log         ConversationLog
	asm         *Assembler
	router      *Router
	provider    Provider
	checkpoints CheckpointStore
	batchSize   int
	logger      *slog.Logger
	tracer      Tracer
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(log ConversationLog, asm *Assembler, router *Router, provider Provider, checkpoints CheckpointStore, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		log:         log,
		asm:         asm,
		router:      router,
		provider:    provider,
		checkpoints: checkpoints,
		batchSize:   defaultBatchSize,
		logger:      NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleChat runs one turn. It never panics and never returns an error:
// every failure mode is folded into the Result envelope. Tool failures
// mark their step failed without failing the turn.
func (o *Orchestrator) HandleChat(ctx context.Context, message, sessionID, planID string) (out Result) {
	start := time.Now()
	out = Result{
		SessionID:   sessionID,
		ToolResults: []ToolResult{},
	}

	var plan *Plan

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("orchestrator: panic", "session", sessionID, "panic", rec)
			out.OK = false
			out.Error = ErrCodeMasterAgentException
			out.Details = map[string]any{"type": "panic", "message": fmt.Sprintf("%v", rec)}
			if plan != nil {
				out.Checkpoint = o.checkpoint(PlanDoc(plan), sessionID, string(PlanFailed))
			}
		}
		out.TimingMS.Total = time.Since(start).Milliseconds()
	}()

	if o.tracer != nil {
		var span Span
		ctx, span = o.tracer.Start(ctx, "turn",
			StringAttr("session_id", sessionID),
			BoolAttr("resume", planID != ""))
		defer span.End()
	}

	if strings.TrimSpace(message) == "" {
		out.Error = "INVALID_MESSAGE"
		return out
	}

	t0 := time.Now()
	if err := o.log.AddTurn(sessionID, "user", message, nil); err != nil {
		o.logger.Error("orchestrator: memory add failed", "session", sessionID, "error", err)
	}
	out.TimingMS.MemoryAdd = time.Since(t0).Milliseconds()

	t0 = time.Now()
	cpack, err := o.asm.BuildContext(ctx, message, sessionID)
	out.TimingMS.ContextBuild = time.Since(t0).Milliseconds()
	if err != nil {
		out.Error = "CONTEXT_BUILD_FAILED"
		out.Details = map[string]any{"message": err.Error()}
		return out
	}

	// Resume: a known plan id skips the planning call entirely.
	resumed := false
	if planID != "" && o.checkpoints.Exists(planID) {
		state, err := o.checkpoints.Load(planID)
		if err == nil {
			plan, err = PlanFromDoc(state.Plan)
		}
		if err != nil {
			out.Error = ErrCodeResumeFailed
			out.Details = map[string]any{"message": err.Error(), "plan_id": planID}
			return out
		}
		plan.PlanID = planID
		resumed = true
		out.Plan = PlanDoc(plan)
		out.Checkpoint = o.checkpoint(out.Plan, sessionID, string(PlanRunning))
		o.logger.Debug("orchestrator: resumed plan", "session", sessionID, "plan_id", planID, "steps", len(plan.Steps))
	}

	if !resumed {
		t0 = time.Now()
		resp, err := o.provider.Chat(ctx, ChatRequest{
			Messages: []ChatMessage{
				SystemMessage(planPrompt),
				UserMessage(cpack.ContextText),
			},
			Temperature: planTemperature,
			MaxTokens:   planMaxTokens,
		})
		out.TimingMS.LLMPlan = time.Since(t0).Milliseconds()
		if err != nil {
			out.Error, out.Details = llmErrorFields(err)
			return out
		}

		rawObj := parseBestJSON(resp.Content)
		if rawObj == nil {
			// No recoverable JSON: the raw text is the answer.
			finalText := strings.TrimSpace(resp.Content)
			o.finalize(ctx, message, finalText, sessionID)
			out.OK = true
			out.Final = finalText
			return out
		}

		adapted := adaptPlanObj(rawObj, message)
		plan, err = NormalizePlan(adapted, message)
		if err != nil {
			debugPlan := map[string]any{
				"plan_id":               fmt.Sprintf("%s_%d", sessionID, time.Now().UnixMilli()),
				"goal":                  message,
				"raw_plan":              rawObj,
				"adapted_plan":          adapted,
				"normalize":             normalizeErrorFields(err),
				"llm_plan_text_preview": truncate(resp.Content, 1200),
			}
			out.Checkpoint = o.checkpoint(debugPlan, sessionID, string(PlanFailedNormalize))
			out.OK = true
			out.Final = strings.TrimSpace(resp.Content)
			out.Error = ErrCodePlanNormalizeFailed
			out.Details = normalizeErrorFields(err)
			out.Plan = debugPlan
			plan = nil
			return out
		}

		out.Plan = PlanDoc(plan)
		out.Checkpoint = o.checkpoint(out.Plan, sessionID, string(PlanRunning))
	}

	// Batch execution loop: dispatch every ready batch, merge results
	// back by step id, checkpoint after each batch.
	var allResults []ToolResult
	tTools := time.Now()
	for plan != nil {
		calls, _, err := ReadyToolBatch(plan, o.batchSize)
		if err != nil || len(calls) == 0 {
			break
		}
		out.ToolBatches++
		out.ToolCallsCount += len(calls)

		results := o.router.ExecuteBatch(ctx, calls)
		allResults = append(allResults, results...)
		ApplyToolResults(plan, results)
		out.Plan = PlanDoc(plan)
		out.Checkpoint = o.checkpoint(out.Plan, sessionID, string(PlanRunning))
	}
	out.TimingMS.PlannerTools = time.Since(tTools).Milliseconds()
	if allResults != nil {
		out.ToolResults = allResults
	}

	// Final synthesis over context, plan progress, and tool results.
	statusJSON := jsonString(Summarize(plan))
	resultsJSON := jsonString(out.ToolResults)

	t0 = time.Now()
	finalResp, err := o.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(finalPrompt),
			UserMessage(cpack.ContextText),
			UserMessage("PLAN_STATUS:\n" + statusJSON),
			UserMessage("TOOL_RESULTS:\n" + resultsJSON),
		},
		Temperature: planTemperature,
		MaxTokens:   planMaxTokens,
	})
	out.TimingMS.LLMFinal = time.Since(t0).Milliseconds()

	var finalText string
	if err == nil {
		if obj := parseBestJSON(finalResp.Content); obj != nil {
			if f, ok := obj["final"].(string); ok {
				finalText = strings.TrimSpace(f)
			}
		}
		if finalText == "" {
			finalText = strings.TrimSpace(finalResp.Content)
		}
	}
	if finalText == "" {
		finalText = "(no output)"
	}

	o.finalize(ctx, message, finalText, sessionID)
	out.OK = true
	out.Final = finalText

	if plan != nil {
		out.Plan = PlanDoc(plan)
		out.Checkpoint = o.checkpoint(out.Plan, sessionID, string(PlanDone))
	}

	o.logger.Debug("orchestrator: turn done", "session", sessionID,
		"batches", out.ToolBatches, "tool_calls", out.ToolCallsCount,
		"duration", time.Since(start))
	return out
}

// finalize distills the finished turn into the conversation log and the
// semantic index. Failures are logged, never surfaced: the answer is
// already computed.
func (o *Orchestrator) finalize(ctx context.Context, task, finalText, sessionID string) {
	if _, err := o.asm.Finalize(ctx, task, finalText, sessionID, "ok"); err != nil {
		o.logger.Error("orchestrator: finalize failed", "session", sessionID, "error", err)
	}
}

// checkpoint persists the plan document, swallowing failures into the
// receipt so a broken disk cannot fail a turn.
func (o *Orchestrator) checkpoint(planDoc map[string]any, sessionID, status string) *CheckpointReceipt {
	if planDoc == nil {
		planDoc = map[string]any{}
	}
	if id, _ := planDoc["plan_id"].(string); id == "" {
		planDoc["plan_id"] = fmt.Sprintf("%s_%d", sessionID, time.Now().UnixMilli())
	}
	if _, ok := planDoc["goal"].(string); !ok {
		planDoc["goal"] = ""
	}

	state, err := o.checkpoints.Wrap(planDoc, status, map[string]any{"session_id": sessionID})
	if err == nil {
		var receipt SaveReceipt
		receipt, err = o.checkpoints.Save(state)
		if err == nil {
			return &CheckpointReceipt{
				OK:     true,
				Status: status,
				Path:   receipt.Path,
				Bytes:  receipt.Bytes,
				PlanID: state.PlanID,
			}
		}
	}
	o.logger.Error("orchestrator: checkpoint failed", "session", sessionID, "status", status, "error", err)
	return &CheckpointReceipt{
		OK:     false,
		Status: status,
		Error:  map[string]any{"message": err.Error()},
	}
}

// adaptPlanObj reshapes loosely structured model output into one of the
// two dialects NormalizePlan accepts.
func adaptPlanObj(obj map[string]any, goalFallback string) map[string]any {
	if obj == nil {
		return map[string]any{"goal": goalFallback, "steps": []any{}}
	}

	if steps, ok := obj["steps"].([]any); ok {
		_ = steps
		if _, ok := obj["goal"].(string); !ok {
			obj["goal"] = goalFallback
		}
		return obj
	}

	if toolCalls, ok := obj["tool_calls"].([]any); ok && len(toolCalls) > 0 {
		var steps []any
		for i, raw := range toolCalls {
			tc, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			args, _ := tc["args"].(map[string]any)
			if args == nil {
				args = map[string]any{}
			}
			steps = append(steps, map[string]any{
				"id":         fmt.Sprintf("s%d", i+1),
				"title":      fmt.Sprintf("Tool: %v.%v", tc["name"], tc["method"]),
				"type":       "tool",
				"depends_on": []any{},
				"tool":       map[string]any{"name": tc["name"], "method": tc["method"], "args": args},
			})
		}
		return map[string]any{"goal": goalFallback, "steps": steps}
	}

	return map[string]any{"goal": goalFallback, "steps": []any{}}
}

// parseBestJSON recovers the first balanced JSON object from model
// output: the trimmed text itself when it is one, else the span from
// the first "{" to the last "}". Non-objects yield nil.
func parseBestJSON(text string) map[string]any {
	s := strings.TrimSpace(text)
	if !(strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) {
		i := strings.Index(s, "{")
		j := strings.LastIndex(s, "}")
		if i < 0 || j <= i {
			return nil
		}
		s = s[i : j+1]
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// llmErrorFields maps a provider error to the response error/details pair.
func llmErrorFields(err error) (string, map[string]any) {
	if le, ok := err.(*ErrLLM); ok {
		return le.Code, le.Detail()
	}
	return ErrCodeLLMException, map[string]any{"message": err.Error()}
}

// normalizeErrorFields maps a normalizer error to a diagnostic map.
func normalizeErrorFields(err error) map[string]any {
	if ne, ok := err.(*ErrNormalize); ok {
		d := map[string]any{"error": ne.Code, "reason": ne.Reason}
		if ne.Details != nil {
			d["details"] = ne.Details
		}
		return d
	}
	return map[string]any{"error": ErrCodePlanNormalizeFailed, "reason": err.Error()}
}
