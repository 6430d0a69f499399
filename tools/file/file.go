// Package file provides workspace-confined file operations: text read
// (PDF-aware), text write, directory listing, and directory creation.
package file

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	aicore "github.com/nevindra/aicore"
)

// MaxReadChars caps how much text one read returns.
const MaxReadChars = 200_000

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider implements aicore.ToolProvider restricted to a workspace
// directory.
type Provider struct {
	workspace string
	logger    *slog.Logger
}

var _ aicore.ToolProvider = (*Provider)(nil)

// New creates a file Provider confined to workspace.
func New(workspace string, opts ...Option) *Provider {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		abs = workspace
	}
	p := &Provider{workspace: abs, logger: aicore.NopLogger()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run dispatches a method.
func (p *Provider) Run(ctx context.Context, method string, args map[string]any) aicore.ToolResult {
	path, _ := args["path"].(string)
	resolved, err := p.resolvePath(path)
	if err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeInvalidArgs, Details: map[string]any{"message": err.Error()}}
	}

	switch method {
	case "read_text":
		return p.readText(resolved, path)
	case "write_text":
		content, _ := args["content"].(string)
		return p.writeText(resolved, path, content)
	case "list_dir":
		return p.listDir(resolved, path)
	case "mkdirs":
		return p.mkdirs(resolved, path)
	case "":
		return aicore.ToolResult{
			Error:   aicore.ErrCodeInvalidMethod,
			Details: map[string]any{"reason": "method is required"},
		}
	default:
		return aicore.ToolResult{
			Error:   aicore.ErrCodeUnknownMethod,
			Details: map[string]any{"method": method, "supported": []string{"read_text", "write_text", "list_dir", "mkdirs"}},
		}
	}
}

// resolvePath joins path under the workspace and rejects escapes.
func (p *Provider) resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return p.workspace, nil
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	resolved := filepath.Clean(filepath.Join(p.workspace, path))
	rel, err := filepath.Rel(p.workspace, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (p *Provider) readText(resolved, path string) aicore.ToolResult {
	var (
		text string
		err  error
	)
	if strings.EqualFold(filepath.Ext(resolved), ".pdf") {
		text, err = readPDF(resolved)
	} else {
		var data []byte
		data, err = os.ReadFile(resolved)
		text = strings.ToValidUTF8(string(data), "�")
	}
	if err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeToolException, Details: map[string]any{"message": err.Error(), "path": path}}
	}

	truncated := false
	if len(text) > MaxReadChars {
		text = text[:MaxReadChars]
		truncated = true
	}
	return aicore.ToolResult{OK: true, Result: map[string]any{
		"ok":        true,
		"path":      path,
		"text":      text,
		"truncated": truncated,
	}}
}

func (p *Provider) writeText(resolved, path, content string) aicore.ToolResult {
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeToolException, Details: map[string]any{"message": err.Error(), "path": path}}
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeToolException, Details: map[string]any{"message": err.Error(), "path": path}}
	}
	p.logger.Debug("file: wrote", "path", path, "bytes", len(content))
	return aicore.ToolResult{OK: true, Result: map[string]any{
		"ok":    true,
		"path":  path,
		"bytes": len(content),
	}}
}

func (p *Provider) listDir(resolved, path string) aicore.ToolResult {
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeToolException, Details: map[string]any{"message": err.Error(), "path": path}}
	}

	names := make([]any, 0, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return aicore.ToolResult{OK: true, Result: map[string]any{
		"ok":      true,
		"path":    path,
		"entries": names,
	}}
}

func (p *Provider) mkdirs(resolved, path string) aicore.ToolResult {
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeToolException, Details: map[string]any{"message": err.Error(), "path": path}}
	}
	return aicore.ToolResult{OK: true, Result: map[string]any{
		"ok":   true,
		"path": path,
	}}
}

// readPDF extracts plain text from a PDF file.
func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
