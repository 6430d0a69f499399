package gateway

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// requestRecord is one JSONL line in the request log.
type requestRecord struct {
	TS          string `json:"ts"`
	RequestID   string `json:"request_id"`
	Remote      string `json:"remote"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      int    `json:"status"`
	LatencyMS   int64  `json:"latency_ms"`
	SessionID   string `json:"session_id,omitempty"`
	PlanID      string `json:"plan_id,omitempty"`
	ChatTotalMS *int64 `json:"chat_total_ms,omitempty"`
}

// requestLog appends one JSON object per request under a lock.
type requestLog struct {
	mu   sync.Mutex
	path string
}

func newRequestLog(path string) *requestLog {
	return &requestLog{path: path}
}

// Append writes one record. Logging failures are swallowed: the log is
// diagnostic, never load-bearing.
func (l *requestLog) Append(rec requestRecord) {
	if rec.TS == "" {
		rec.TS = time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}
