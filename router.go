package aicore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ToolProvider is a capability provider dispatched through the Router.
// Run never panics through the boundary and never returns a Go error:
// failures come back as ToolResult with OK=false and a structured code.
type ToolProvider interface {
	Run(ctx context.Context, method string, args map[string]any) ToolResult
}

// maxParallelDispatch caps the number of concurrent tool call goroutines
// within one batch so a large batch cannot overwhelm external services.
const maxParallelDispatch = 10

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets a structured logger for dispatch logging.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// WithRouterTracer sets a tracer; each dispatched call opens a span.
func WithRouterTracer(t Tracer) RouterOption {
	return func(r *Router) { r.tracer = t }
}

// Router dispatches tool calls to registered providers under the uniform
// Run contract, canonicalizing method aliases before dispatch.
type Router struct {
	mu        sync.RWMutex
	providers map[string]ToolProvider
	logger    *slog.Logger
	tracer    Tracer
}

// NewRouter creates an empty router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		providers: make(map[string]ToolProvider),
		logger:    NopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a provider under a short name. Re-registering a name
// replaces the previous provider.
func (r *Router) Register(name string, p ToolProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// AvailableTools returns the sorted set of registered provider names.
func (r *Router) AvailableTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CanonicalMethod resolves method aliases to a provider's canonical
// method name. This is the single source of truth: both the orchestrator
// and direct router callers go through it.
func CanonicalMethod(name, method string) string {
	switch name {
	case "browser":
		switch method {
		case "fetch", "get", "get_url", "download", "httpget":
			return "http_get"
		}
	case "terminal":
		switch method {
		case "exec", "run", "cmd":
			return "run_cmd"
		}
	case "file":
		switch method {
		case "read":
			return "read_text"
		case "write":
			return "write_text"
		case "ls", "dir":
			return "list_dir"
		case "mkdir":
			return "mkdirs"
		}
	}
	return method
}

// Execute dispatches a single tool call. The returned envelope always
// carries the canonical name/method and the caller's _step_id.
func (r *Router) Execute(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()

	if call.Name == "" || call.Method == "" {
		return ToolResult{
			OK:      false,
			Name:    call.Name,
			Method:  call.Method,
			Error:   ErrCodeInvalidToolCall,
			Details: map[string]any{"reason": "name and method are required"},
			StepID:  call.StepID,
		}
	}

	method := CanonicalMethod(call.Name, call.Method)

	r.mu.RLock()
	p, ok := r.providers[call.Name]
	r.mu.RUnlock()
	if !ok {
		return ToolResult{
			OK:      false,
			Name:    call.Name,
			Method:  method,
			Error:   ErrCodeUnknownTool,
			Details: map[string]any{"available": r.AvailableTools()},
			StepID:  call.StepID,
		}
	}

	if r.tracer != nil {
		var span Span
		ctx, span = r.tracer.Start(ctx, "tool.dispatch",
			StringAttr("tool.name", call.Name),
			StringAttr("tool.method", method))
		defer span.End()
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	res := r.safeRun(ctx, p, call.Name, method, args)
	res.Name = call.Name
	res.Method = method
	res.StepID = call.StepID

	if res.OK {
		r.logger.Debug("router: dispatch ok", "tool", call.Name, "method", method, "duration", time.Since(start))
	} else {
		r.logger.Debug("router: dispatch failed", "tool", call.Name, "method", method, "error", res.Error, "duration", time.Since(start))
	}
	return res
}

// safeRun invokes a provider with panic recovery. A panicking provider
// yields a TOOL_EXCEPTION result instead of crashing the turn.
func (r *Router) safeRun(ctx context.Context, p ToolProvider, name, method string, args map[string]any) (res ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = ToolResult{
				OK:      false,
				Error:   ErrCodeToolException,
				Details: map[string]any{"type": "panic", "message": fmt.Sprintf("%v", rec)},
			}
			r.logger.Error("router: provider panic", "tool", name, "method", method, "panic", rec)
		}
	}()
	return p.Run(ctx, method, args)
}

// ExecuteBatch dispatches calls concurrently through a fixed worker pool
// and returns results in input order. A single call runs inline.
func (r *Router) ExecuteBatch(ctx context.Context, calls []ToolCall) []ToolResult {
	if len(calls) == 0 {
		return nil
	}
	if len(calls) == 1 {
		return []ToolResult{r.Execute(ctx, calls[0])}
	}

	type workItem struct {
		idx  int
		call ToolCall
	}
	workCh := make(chan workItem, len(calls))
	for i, c := range calls {
		workCh <- workItem{idx: i, call: c}
	}
	close(workCh)

	results := make([]ToolResult, len(calls))
	numWorkers := min(len(calls), maxParallelDispatch)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					results[w.idx] = ToolResult{
						OK:      false,
						Name:    w.call.Name,
						Method:  CanonicalMethod(w.call.Name, w.call.Method),
						Error:   ErrCodeToolException,
						Details: map[string]any{"message": ctx.Err().Error()},
						StepID:  w.call.StepID,
					}
					continue
				}
				results[w.idx] = r.Execute(ctx, w.call)
			}
		}()
	}
	wg.Wait()
	return results
}
