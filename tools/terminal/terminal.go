// Package terminal provides the allowlisted subprocess capability.
// Commands are tokenized without shell interpretation, the executable
// must appear in the allowlist, and the working directory is confined
// under a base directory.
package terminal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	aicore "github.com/nevindra/aicore"
)

// Execution caps.
const (
	DefaultTimeoutSec = 60
	MaxTimeoutSec     = 3600
	MaxOutputBytes    = 1_000_000
)

// DefaultAllowlist names the executables permitted out of the box.
var DefaultAllowlist = []string{"python", "pip", "git"}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithAllowlist replaces the executable allowlist.
func WithAllowlist(names []string) Option {
	return func(p *Provider) {
		if len(names) > 0 {
			p.allowlist = names
		}
	}
}

// Provider implements aicore.ToolProvider with a single method,
// run_cmd.
type Provider struct {
	baseDir   string
	allowlist []string
	logger    *slog.Logger
}

var _ aicore.ToolProvider = (*Provider)(nil)

// New creates a terminal Provider confined to baseDir.
func New(baseDir string, opts ...Option) *Provider {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	p := &Provider{
		baseDir:   abs,
		allowlist: DefaultAllowlist,
		logger:    aicore.NopLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run dispatches a method.
func (p *Provider) Run(ctx context.Context, method string, args map[string]any) aicore.ToolResult {
	switch method {
	case "run_cmd":
		return p.runCmd(ctx, args)
	case "":
		return aicore.ToolResult{
			Error:   aicore.ErrCodeInvalidMethod,
			Details: map[string]any{"reason": "method is required"},
		}
	default:
		return aicore.ToolResult{
			Error:   aicore.ErrCodeUnknownMethod,
			Details: map[string]any{"method": method, "supported": []string{"run_cmd"}},
		}
	}
}

func (p *Provider) runCmd(ctx context.Context, args map[string]any) aicore.ToolResult {
	start := time.Now()

	argv, err := commandArgv(args["cmd"])
	if err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeInvalidArgs, Details: map[string]any{"message": err.Error()}}
	}

	exe := argv[0]
	if !p.exeAllowed(exe) {
		return aicore.ToolResult{
			Error:   aicore.ErrCodeExecutableNotAllowed,
			Details: map[string]any{"exe": exe, "allowlist": p.allowlist},
		}
	}

	cwd, err := p.resolveCwd(args["cwd"])
	if err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeInvalidArgs, Details: map[string]any{"message": err.Error()}}
	}

	env, err := buildEnv(args["env"])
	if err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeInvalidArgs, Details: map[string]any{"message": err.Error()}}
	}

	timeoutSec := 0
	switch v := args["timeout_sec"].(type) {
	case float64:
		timeoutSec = int(v)
	case int:
		timeoutSec = v
	}
	if timeoutSec <= 0 {
		timeoutSec = DefaultTimeoutSec
	}
	if timeoutSec > MaxTimeoutSec {
		timeoutSec = MaxTimeoutSec
	}

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = env

	var stdout, stderr cappedBuffer
	stdout.cap = MaxOutputBytes
	stderr.cap = MaxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	outText := strings.ToValidUTF8(string(stdout.buf), "�")
	errText := strings.ToValidUTF8(string(stderr.buf), "�")

	if cmdCtx.Err() == context.DeadlineExceeded {
		p.logger.Debug("terminal: command timed out", "exe", exe, "timeout_sec", timeoutSec)
		return aicore.ToolResult{
			Error: aicore.ErrCodeTimeout,
			Details: map[string]any{
				"timeout_sec":      timeoutSec,
				"stdout":           outText,
				"stderr":           errText,
				"stdout_truncated": stdout.truncated,
				"stderr_truncated": stderr.truncated,
			},
		}
	}

	returncode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			returncode = exitErr.ExitCode()
		} else {
			return aicore.ToolResult{Error: aicore.ErrCodeToolException, Details: map[string]any{"message": runErr.Error(), "exe": exe}}
		}
	}

	p.logger.Debug("terminal: command done", "exe", exe, "returncode", returncode, "duration", time.Since(start))
	return aicore.ToolResult{
		OK: returncode == 0,
		Result: map[string]any{
			"ok":               returncode == 0,
			"exe":              exe,
			"cmd":              argv,
			"cwd":              cwd,
			"returncode":       returncode,
			"stdout":           outText,
			"stderr":           errText,
			"stdout_truncated": stdout.truncated,
			"stderr_truncated": stderr.truncated,
		},
	}
}

// exeAllowed checks the first token against the allowlist by basename,
// case-insensitive, with either separator style and a trailing .exe
// stripped.
func (p *Provider) exeAllowed(exe string) bool {
	base := strings.ToLower(exe)
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".exe")
	for _, a := range p.allowlist {
		if base == strings.ToLower(a) {
			return true
		}
	}
	return false
}

// resolveCwd confines the working directory under the base directory.
func (p *Provider) resolveCwd(raw any) (string, error) {
	dir, _ := raw.(string)
	if strings.TrimSpace(dir) == "" {
		return p.baseDir, nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.baseDir, dir)
	}
	resolved := filepath.Clean(dir)
	rel, err := filepath.Rel(p.baseDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("cwd escapes the workspace: " + dir)
	}
	return resolved, nil
}

// commandArgv accepts either an argument vector or a shell-like string
// and returns the argv to execute. No shell ever runs.
func commandArgv(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []any:
		var argv []string
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("cmd vector items must be strings")
			}
			argv = append(argv, s)
		}
		if len(argv) == 0 {
			return nil, errors.New("cmd is required")
		}
		return argv, nil
	case []string:
		if len(v) == 0 {
			return nil, errors.New("cmd is required")
		}
		return v, nil
	case string:
		argv, err := tokenize(v)
		if err != nil {
			return nil, err
		}
		if len(argv) == 0 {
			return nil, errors.New("cmd is required")
		}
		return argv, nil
	default:
		return nil, errors.New("cmd must be a string or a vector of strings")
	}
}

// buildEnv starts from the process environment and applies caller
// overrides: string values set, nil values unset. Values must be
// scalar.
func buildEnv(raw any) ([]string, error) {
	overrides, ok := raw.(map[string]any)
	if !ok || len(overrides) == 0 {
		return os.Environ(), nil
	}

	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		switch val := v.(type) {
		case nil:
			delete(env, k)
		case string:
			env[k] = val
		case bool:
			env[k] = strconv.FormatBool(val)
		case float64:
			env[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return nil, errors.New("env values must be scalar: " + k)
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out, nil
}

var _ io.Writer = (*cappedBuffer)(nil)

// cappedBuffer accumulates writes up to cap bytes, recording overflow
// instead of growing.
type cappedBuffer struct {
	buf       []byte
	cap       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if len(b.buf) < b.cap {
		room := b.cap - len(b.buf)
		if len(p) <= room {
			b.buf = append(b.buf, p...)
		} else {
			b.buf = append(b.buf, p[:room]...)
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}
