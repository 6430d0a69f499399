package lmstudio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	aicore "github.com/nevindra/aicore"
)

// WarmupStatus is an atomically readable snapshot of the background
// warmup attempt. Zero value means warmup has not started.
type WarmupStatus struct {
	Started bool           `json:"warmup_started"`
	Done    bool           `json:"warmup_done"`
	OK      bool           `json:"warmup_ok"`
	MS      int64          `json:"warmup_ms"`
	Error   map[string]any `json:"warmup_error"`
}

// Warmup supervises a single best-effort warmup chat against the
// endpoint. Start is idempotent; Status never observes a half-written
// snapshot because the whole struct is swapped through an atomic value.
type Warmup struct {
	once   sync.Once
	status atomic.Value // WarmupStatus
}

// NewWarmup creates an idle Warmup.
func NewWarmup() *Warmup {
	w := &Warmup{}
	w.status.Store(WarmupStatus{})
	return w
}

// Start launches the warmup goroutine on first call. The trivial chat
// uses temperature 0 and an 8-token budget; its outcome is recorded but
// never gates request handling.
func (w *Warmup) Start(client *Client) {
	w.once.Do(func() {
		w.status.Store(WarmupStatus{Started: true})
		go func() {
			start := time.Now()
			var errDetail map[string]any
			ok := true

			err := client.Ping(context.Background())
			if err != nil {
				ok = false
				if le, isLLM := err.(*aicore.ErrLLM); isLLM {
					errDetail = map[string]any{"error": le.Code, "details": le.Detail()}
				} else {
					errDetail = map[string]any{"error": aicore.ErrCodeLLMException, "details": map[string]any{"message": err.Error()}}
				}
			}

			w.status.Store(WarmupStatus{
				Started: true,
				Done:    true,
				OK:      ok,
				MS:      time.Since(start).Milliseconds(),
				Error:   errDetail,
			})
		}()
	})
}

// Status returns the current snapshot.
func (w *Warmup) Status() WarmupStatus {
	return w.status.Load().(WarmupStatus)
}
