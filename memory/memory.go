// Package memory implements the append-only per-session conversation
// log: one JSONL file per sanitized session id.
package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	aicore "github.com/nevindra/aicore"
)

// LogOption configures a Log.
type LogOption func(*Log)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) LogOption {
	return func(m *Log) { m.logger = l }
}

// Log stores conversations as JSONL files under a base directory.
// Appends serialize through a per-instance lock; readers take the same
// lock to coordinate with concurrent appends.
type Log struct {
	base   string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ aicore.ConversationLog = (*Log)(nil)

// New creates a Log rooted at dir (typically "data/memory").
func New(dir string, opts ...LogOption) *Log {
	m := &Log{base: dir, logger: aicore.NopLogger()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// sessionPath maps a session id to its JSONL file. Characters outside
// alphanumerics and -_. are removed.
func (m *Log) sessionPath(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("session_id must be a non-empty string")
	}
	var b strings.Builder
	for _, ch := range sessionID {
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' ||
			ch == '-' || ch == '_' || ch == '.' {
			b.WriteRune(ch)
		}
	}
	safe := b.String()
	if safe == "" {
		return "", fmt.Errorf("session_id %q invalid after sanitization", sessionID)
	}
	return filepath.Join(m.base, safe+".jsonl"), nil
}

// AddTurn appends one turn to the session's log.
func (m *Log) AddTurn(sessionID, role, message string, meta map[string]any) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("memory: role must be a non-empty string")
	}
	path, err := m.sessionPath(sessionID)
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}

	turn := aicore.Turn{TS: aicore.NowUnixF(), Role: role, Message: message, Meta: meta}
	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("memory: encode turn: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("memory: append: %w", err)
	}
	m.logger.Debug("memory: turn appended", "session", sessionID, "role", role, "chars", len(message))
	return nil
}

// GetConversation returns all turns of a session, or the last limit
// turns when limit > 0. Lines that are not valid JSON objects are
// treated as legacy plain-text user messages.
func (m *Log) GetConversation(sessionID string, limit int) ([]aicore.Turn, error) {
	if limit < 0 {
		return nil, fmt.Errorf("memory: limit must be positive or zero")
	}
	path, err := m.sessionPath(sessionID)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []aicore.Turn{}, nil
		}
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	defer f.Close()

	var turns []aicore.Turn
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			var t aicore.Turn
			if err := json.Unmarshal([]byte(line), &t); err == nil && t.Role != "" {
				turns = append(turns, t)
				continue
			}
		}
		// Legacy fallback: plain text user message.
		turns = append(turns, aicore.Turn{Role: "user", Message: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("memory: scan %s: %w", path, err)
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Clear removes the session's log file. Missing files are not an error.
func (m *Log) Clear(sessionID string) error {
	path, err := m.sessionPath(sessionID)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Debug("memory: clear failed", "session", sessionID, "error", err)
	}
	return nil
}
