package observer

import (
	"context"
	"time"

	aicore "github.com/nevindra/aicore"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TurnHandler is the orchestrator surface the observer can wrap.
type TurnHandler interface {
	HandleChat(ctx context.Context, message, sessionID, planID string) aicore.Result
}

// ObservedTurnHandler instruments whole chat turns.
type ObservedTurnHandler struct {
	inner TurnHandler
	inst  *Instruments
}

var _ TurnHandler = (*ObservedTurnHandler)(nil)

// WrapTurnHandler returns an instrumented turn handler.
func WrapTurnHandler(inner TurnHandler, inst *Instruments) *ObservedTurnHandler {
	return &ObservedTurnHandler{inner: inner, inst: inst}
}

func (o *ObservedTurnHandler) HandleChat(ctx context.Context, message, sessionID, planID string) aicore.Result {
	ctx, span := o.inst.Tracer.Start(ctx, "turn.handle", trace.WithAttributes(
		AttrSessionID.String(sessionID),
		AttrTurnResume.Bool(planID != ""),
	))
	defer span.End()
	start := time.Now()

	res := o.inner.HandleChat(ctx, message, sessionID, planID)

	durationMS := float64(time.Since(start).Milliseconds())
	status := "ok"
	if !res.OK {
		status = "error"
		span.SetStatus(codes.Error, res.Error)
	}
	span.SetAttributes(AttrTurnStatus.String(status))

	attrs := metric.WithAttributes(AttrTurnStatus.String(status))
	o.inst.TurnExecutions.Add(ctx, 1, attrs)
	o.inst.TurnDuration.Record(ctx, durationMS, attrs)

	return res
}
