package aicore

import "fmt"

// Error codes shared across component boundaries. These are wire contract:
// they appear verbatim in ToolResult.Error, Result.Error, and HTTP bodies.
const (
	// Admission
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeBusy            = "BUSY"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeInvalidSchema   = "INVALID_SCHEMA"
	ErrCodeNotFound        = "NOT_FOUND"

	// LLM
	ErrCodeHTTPError      = "HTTP_ERROR"
	ErrCodeNoChoices      = "NO_CHOICES"
	ErrCodeLLMException   = "LLM_EXCEPTION"
	ErrCodeLLMUnreachable = "LLM_UNREACHABLE"

	// Planner
	ErrCodeUnsupportedPlanFormat = "UNSUPPORTED_PLAN_FORMAT"
	ErrCodeInvalidSteps          = "INVALID_STEPS"
	ErrCodeTooManySteps          = "TOO_MANY_STEPS"
	ErrCodePlanNormalizeFailed   = "PLAN_NORMALIZE_FAILED"
	ErrCodeInvalidPlan           = "INVALID_PLAN"
	ErrCodeInvalidBatchSize      = "INVALID_BATCH_SIZE"

	// Tools
	ErrCodeInvalidToolCall       = "INVALID_TOOL_CALL"
	ErrCodeUnknownTool           = "UNKNOWN_TOOL"
	ErrCodeToolException         = "TOOL_EXCEPTION"
	ErrCodeInvalidMethod         = "INVALID_METHOD"
	ErrCodeUnknownMethod         = "UNKNOWN_METHOD"
	ErrCodeInvalidArgs           = "INVALID_ARGS"
	ErrCodeUnsupported           = "UNSUPPORTED"
	ErrCodeLANHostNotAllowlisted = "LAN_HOST_NOT_ALLOWLISTED"
	ErrCodeDNSResolutionFailed   = "DNS_RESOLUTION_FAILED"
	ErrCodeExecutableNotAllowed  = "EXECUTABLE_NOT_ALLOWED"
	ErrCodeTimeout               = "TIMEOUT"

	// Storage
	ErrCodeSchemaMismatch     = "SCHEMA_MISMATCH"
	ErrCodeRAGUpsertException = "RAG_UPSERT_EXCEPTION"

	// Orchestrator / gateway
	ErrCodeMasterAgentException = "MASTERAGENT_EXCEPTION"
	ErrCodeGatewayException     = "GATEWAY_EXCEPTION"
	ErrCodeResumeFailed         = "RESUME_FAILED"
	ErrCodeWarmupFailed         = "WARMUP_FAILED"
)

// ErrLLM is returned by the LLM client for transport, HTTP, and shape
// failures. Code is one of the LLM error codes above.
type ErrLLM struct {
	Code   string
	Reason string
	Status int
	Body   string
}

func (e *ErrLLM) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Code, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Detail builds the structured detail map surfaced to clients.
func (e *ErrLLM) Detail() map[string]any {
	d := map[string]any{"reason": e.Reason}
	if e.Status != 0 {
		d["code"] = e.Status
	}
	if e.Body != "" {
		d["body"] = e.Body
	}
	return d
}

// ErrNormalize is returned by the plan normalizer. Code is one of the
// planner error codes above.
type ErrNormalize struct {
	Code    string
	Reason  string
	Details map[string]any
}

func (e *ErrNormalize) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// ErrCheckpoint is returned by the checkpoint store for validation and
// lookup failures.
type ErrCheckpoint struct {
	Code   string
	Reason string
}

func (e *ErrCheckpoint) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}
