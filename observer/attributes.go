package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMethod   = attribute.Key("llm.method")

	AttrToolName   = attribute.Key("tool.name")
	AttrToolMethod = attribute.Key("tool.method")
	AttrToolStatus = attribute.Key("tool.status")

	AttrSessionID  = attribute.Key("turn.session_id")
	AttrTurnStatus = attribute.Key("turn.status")
	AttrTurnResume = attribute.Key("turn.resume")
)
