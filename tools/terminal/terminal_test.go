package terminal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	aicore "github.com/nevindra/aicore"
)

func testProvider(t *testing.T, extra ...string) *Provider {
	t.Helper()
	allow := append([]string{"echo", "sh", "false", "sleep", "printenv", "pwd"}, extra...)
	return New(t.TempDir(), WithAllowlist(allow))
}

func TestRunCmdOK(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{"cmd": "echo hello"})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Result["returncode"] != 0 {
		t.Errorf("wrong returncode: %v", res.Result["returncode"])
	}
	if res.Result["stdout"] != "hello\n" {
		t.Errorf("wrong stdout: %q", res.Result["stdout"])
	}
	if res.Result["exe"] != "echo" {
		t.Errorf("wrong exe: %v", res.Result["exe"])
	}
}

func TestRunCmdVector(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{
		"cmd": []any{"echo", "two words"},
	})
	if !res.OK || res.Result["stdout"] != "two words\n" {
		t.Fatalf("vector form should pass args verbatim: %+v", res)
	}
}

func TestRunCmdNoShellExpansion(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{"cmd": "echo $HOME"})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Result["stdout"] != "$HOME\n" {
		t.Errorf("no shell means no expansion, got %q", res.Result["stdout"])
	}
}

func TestRunCmdExecutableNotAllowed(t *testing.T) {
	p := testProvider(t)
	for _, cmd := range []string{"rm -rf /", "/usr/bin/curl http://x", "bash -c evil"} {
		res := p.Run(context.Background(), "run_cmd", map[string]any{"cmd": cmd})
		if res.OK || res.Error != aicore.ErrCodeExecutableNotAllowed {
			t.Errorf("%q: expected EXECUTABLE_NOT_ALLOWED, got %+v", cmd, res)
		}
	}
}

func TestExeAllowedVariants(t *testing.T) {
	p := New("/tmp", WithAllowlist([]string{"python", "git"}))
	for _, exe := range []string{"python", "PYTHON", "Python.exe", "/usr/bin/python", "C:\\Python\\python.exe"} {
		if !p.exeAllowed(exe) {
			t.Errorf("%q should be allowed", exe)
		}
	}
	for _, exe := range []string{"python3", "gitk", "perl"} {
		if p.exeAllowed(exe) {
			t.Errorf("%q should be denied", exe)
		}
	}
}

func TestRunCmdNonZeroExit(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{"cmd": "false"})
	if res.OK {
		t.Fatal("nonzero exit is not ok")
	}
	if res.Result["returncode"] == 0 {
		t.Errorf("returncode should be nonzero: %v", res.Result)
	}
}

func TestRunCmdCwdConfinement(t *testing.T) {
	p := testProvider(t)
	for _, cwd := range []string{"..", "../..", "/etc", "sub/../../.."} {
		res := p.Run(context.Background(), "run_cmd", map[string]any{"cmd": "pwd", "cwd": cwd})
		if res.OK || res.Error != aicore.ErrCodeInvalidArgs {
			t.Errorf("cwd %q: expected INVALID_ARGS, got %+v", cwd, res)
		}
	}
}

func TestRunCmdCwdSubdir(t *testing.T) {
	base := t.TempDir()
	p := New(base, WithAllowlist([]string{"pwd"}))
	sub := filepath.Join(base, "nested", "dir")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res := p.Run(context.Background(), "run_cmd", map[string]any{"cmd": "pwd", "cwd": "nested/dir"})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	out := strings.TrimSpace(res.Result["stdout"].(string))
	if !strings.HasSuffix(out, filepath.Join("nested", "dir")) {
		t.Errorf("wrong cwd: %q", out)
	}
}

func TestRunCmdEnvOverrides(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{
		"cmd": []any{"printenv", "TEST_TOKEN"},
		"env": map[string]any{"TEST_TOKEN": "sekrit", "NUMERIC": float64(3), "FLAG": true},
	})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Result["stdout"] != "sekrit\n" {
		t.Errorf("override not applied: %q", res.Result["stdout"])
	}
}

func TestRunCmdEnvUnset(t *testing.T) {
	t.Setenv("DOOMED_VAR", "present")
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{
		"cmd": []any{"printenv", "DOOMED_VAR"},
		"env": map[string]any{"DOOMED_VAR": nil},
	})
	// printenv exits 1 when the variable is absent.
	if res.OK {
		t.Errorf("nil override should unset the variable: %+v", res)
	}
}

func TestRunCmdEnvNonScalar(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{
		"cmd": "echo x",
		"env": map[string]any{"BAD": map[string]any{"nested": 1}},
	})
	if res.OK || res.Error != aicore.ErrCodeInvalidArgs {
		t.Fatalf("expected INVALID_ARGS, got %+v", res)
	}
}

func TestRunCmdTimeout(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{
		"cmd": "sleep 5", "timeout_sec": 1,
	})
	if res.OK || res.Error != aicore.ErrCodeTimeout {
		t.Fatalf("expected TIMEOUT, got %+v", res)
	}
	if res.Details["timeout_sec"] != 1 {
		t.Errorf("details should carry the timeout: %v", res.Details)
	}
}

func TestRunCmdOutputCap(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "run_cmd", map[string]any{
		"cmd": []any{"sh", "-c", "head -c 2000000 /dev/zero | tr '\\0' 'x'"},
	})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Result["stdout_truncated"] != true {
		t.Error("oversized stdout should be marked truncated")
	}
	if out := res.Result["stdout"].(string); len(out) != MaxOutputBytes {
		t.Errorf("stdout should cap at %d, got %d", MaxOutputBytes, len(out))
	}
}

func TestRunCmdInvalidArgs(t *testing.T) {
	p := testProvider(t)
	for _, cmd := range []any{nil, 42, []any{1, 2}, "", []any{}} {
		res := p.Run(context.Background(), "run_cmd", map[string]any{"cmd": cmd})
		if res.OK || res.Error != aicore.ErrCodeInvalidArgs {
			t.Errorf("cmd %v: expected INVALID_ARGS, got %+v", cmd, res)
		}
	}
}

func TestRunCmdUnknownMethod(t *testing.T) {
	p := testProvider(t)
	res := p.Run(context.Background(), "open_shell", nil)
	if res.OK || res.Error != aicore.ErrCodeUnknownMethod {
		t.Fatalf("expected UNKNOWN_METHOD, got %+v", res)
	}
	res = p.Run(context.Background(), "", nil)
	if res.OK || res.Error != aicore.ErrCodeInvalidMethod {
		t.Fatalf("expected INVALID_METHOD, got %+v", res)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := cappedBuffer{cap: 5}
	b.Write([]byte("abc"))
	b.Write([]byte("defg"))
	if string(b.buf) != "abcde" || !b.truncated {
		t.Errorf("wrong buffer state: %q truncated=%v", b.buf, b.truncated)
	}
	n, err := b.Write([]byte("more"))
	if n != 4 || err != nil {
		t.Error("writes past the cap still report full length")
	}
}
