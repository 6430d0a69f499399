package aicore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type stubTool struct {
	run func(ctx context.Context, method string, args map[string]any) ToolResult
}

func (s *stubTool) Run(ctx context.Context, method string, args map[string]any) ToolResult {
	return s.run(ctx, method, args)
}

func okTool() *stubTool {
	return &stubTool{run: func(_ context.Context, method string, args map[string]any) ToolResult {
		return ToolResult{OK: true, Result: map[string]any{"method": method, "args": args}}
	}}
}

func TestCanonicalMethod(t *testing.T) {
	cases := []struct{ name, method, want string }{
		{"browser", "fetch", "http_get"},
		{"browser", "get", "http_get"},
		{"browser", "get_url", "http_get"},
		{"browser", "download", "http_get"},
		{"browser", "httpget", "http_get"},
		{"browser", "http_get", "http_get"},
		{"terminal", "exec", "run_cmd"},
		{"terminal", "run", "run_cmd"},
		{"terminal", "cmd", "run_cmd"},
		{"file", "read", "read_text"},
		{"file", "write", "write_text"},
		{"file", "ls", "list_dir"},
		{"file", "dir", "list_dir"},
		{"file", "mkdir", "mkdirs"},
		{"ping", "ping", "ping"},
		{"browser", "unknown", "unknown"},
	}
	for _, c := range cases {
		if got := CanonicalMethod(c.name, c.method); got != c.want {
			t.Errorf("%s.%s: got %q want %q", c.name, c.method, got, c.want)
		}
	}
}

func TestRouterExecuteCanonicalizes(t *testing.T) {
	r := NewRouter()
	r.Register("browser", okTool())

	res := r.Execute(context.Background(), ToolCall{Name: "browser", Method: "fetch", StepID: "s1"})
	if !res.OK {
		t.Fatalf("expected ok: %+v", res)
	}
	if res.Method != "http_get" {
		t.Errorf("envelope should carry the canonical method, got %q", res.Method)
	}
	if res.Result["method"] != "http_get" {
		t.Error("provider should receive the canonical method")
	}
	if res.StepID != "s1" {
		t.Error("step id must pass through")
	}
}

func TestRouterUnknownTool(t *testing.T) {
	r := NewRouter()
	r.Register("ping", okTool())

	res := r.Execute(context.Background(), ToolCall{Name: "nope", Method: "x"})
	if res.OK || res.Error != ErrCodeUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL, got %+v", res)
	}
	avail, ok := res.Details["available"].([]string)
	if !ok || len(avail) != 1 || avail[0] != "ping" {
		t.Errorf("details should list registered tools, got %v", res.Details)
	}
}

func TestRouterInvalidCall(t *testing.T) {
	r := NewRouter()
	res := r.Execute(context.Background(), ToolCall{Name: "", Method: "x"})
	if res.OK || res.Error != ErrCodeInvalidToolCall {
		t.Fatalf("expected INVALID_TOOL_CALL, got %+v", res)
	}
}

func TestRouterPanicRecovery(t *testing.T) {
	r := NewRouter()
	r.Register("boom", &stubTool{run: func(context.Context, string, map[string]any) ToolResult {
		panic("kaboom")
	}})

	res := r.Execute(context.Background(), ToolCall{Name: "boom", Method: "go", StepID: "s1"})
	if res.OK || res.Error != ErrCodeToolException {
		t.Fatalf("expected TOOL_EXCEPTION, got %+v", res)
	}
	if res.Details["type"] != "panic" {
		t.Errorf("details should mark the panic, got %v", res.Details)
	}
	if res.StepID != "s1" {
		t.Error("step id must survive the recovery path")
	}
}

func TestRouterNilArgs(t *testing.T) {
	r := NewRouter()
	r.Register("echo", &stubTool{run: func(_ context.Context, _ string, args map[string]any) ToolResult {
		if args == nil {
			return ToolResult{OK: false, Error: "nil args"}
		}
		return ToolResult{OK: true}
	}})
	res := r.Execute(context.Background(), ToolCall{Name: "echo", Method: "echo"})
	if !res.OK {
		t.Error("provider must never see nil args")
	}
}

func TestRouterReplaceProvider(t *testing.T) {
	r := NewRouter()
	r.Register("x", &stubTool{run: func(context.Context, string, map[string]any) ToolResult {
		return ToolResult{OK: false, Error: "old"}
	}})
	r.Register("x", okTool())
	if res := r.Execute(context.Background(), ToolCall{Name: "x", Method: "m"}); !res.OK {
		t.Error("re-registering should replace the provider")
	}
}

func TestExecuteBatchOrder(t *testing.T) {
	r := NewRouter()
	r.Register("echo", &stubTool{run: func(_ context.Context, _ string, args map[string]any) ToolResult {
		// Stagger completion so order preservation is not accidental.
		if args["slow"] == true {
			time.Sleep(20 * time.Millisecond)
		}
		return ToolResult{OK: true, Result: map[string]any{"i": args["i"]}}
	}})

	calls := []ToolCall{
		{Name: "echo", Method: "echo", Args: map[string]any{"i": 0, "slow": true}, StepID: "s0"},
		{Name: "echo", Method: "echo", Args: map[string]any{"i": 1}, StepID: "s1"},
		{Name: "echo", Method: "echo", Args: map[string]any{"i": 2}, StepID: "s2"},
	}
	results := r.ExecuteBatch(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.StepID != calls[i].StepID {
			t.Errorf("result %d out of order: %+v", i, res)
		}
	}
}

func TestExecuteBatchEmpty(t *testing.T) {
	r := NewRouter()
	if res := r.ExecuteBatch(context.Background(), nil); res != nil {
		t.Error("empty batch should return nil")
	}
}

func TestExecuteBatchCancelledContext(t *testing.T) {
	var ran atomic.Int32
	r := NewRouter()
	r.Register("echo", &stubTool{run: func(context.Context, string, map[string]any) ToolResult {
		ran.Add(1)
		return ToolResult{OK: true}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := []ToolCall{
		{Name: "echo", Method: "echo", StepID: "a"},
		{Name: "echo", Method: "echo", StepID: "b"},
	}
	results := r.ExecuteBatch(ctx, calls)
	for _, res := range results {
		if res.OK || res.Error != ErrCodeToolException {
			t.Errorf("cancelled batch entries should fail with TOOL_EXCEPTION: %+v", res)
		}
	}
	if ran.Load() != 0 {
		t.Error("no provider should run after cancellation")
	}
}

func TestAvailableToolsSorted(t *testing.T) {
	r := NewRouter()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		r.Register(n, okTool())
	}
	names := r.AvailableTools()
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Errorf("expected sorted names, got %v", names)
	}
}
