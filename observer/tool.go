package observer

import (
	"context"
	"time"

	aicore "github.com/nevindra/aicore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedToolProvider wraps an aicore.ToolProvider with OTEL
// instrumentation. Register the wrapped provider under the same name.
type ObservedToolProvider struct {
	inner aicore.ToolProvider
	inst  *Instruments
	name  string
}

var _ aicore.ToolProvider = (*ObservedToolProvider)(nil)

// WrapToolProvider returns an instrumented tool provider.
func WrapToolProvider(name string, inner aicore.ToolProvider, inst *Instruments) *ObservedToolProvider {
	return &ObservedToolProvider{inner: inner, inst: inst, name: name}
}

func (o *ObservedToolProvider) Run(ctx context.Context, method string, args map[string]any) aicore.ToolResult {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.run", trace.WithAttributes(
		AttrToolName.String(o.name),
		AttrToolMethod.String(method),
	))
	defer span.End()
	start := time.Now()

	res := o.inner.Run(ctx, method, args)

	durationMS := float64(time.Since(start).Milliseconds())
	status := "ok"
	if !res.OK {
		status = "error"
		span.SetStatus(codes.Error, res.Error)
		span.SetAttributes(attribute.String("tool.error", res.Error))
	}
	span.SetAttributes(AttrToolStatus.String(status))

	attrs := metric.WithAttributes(
		AttrToolName.String(o.name),
		AttrToolMethod.String(method),
		AttrToolStatus.String(status),
	)
	o.inst.ToolExecutions.Add(ctx, 1, attrs)
	o.inst.ToolDuration.Record(ctx, durationMS, attrs)

	return res
}
