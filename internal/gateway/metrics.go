package gateway

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Histogram windows.
const (
	latencyWindow = 5000
	chatWindow    = 2000
)

// WarmupSnapshot mirrors the supervised LLM warmup state into the
// metrics document.
type WarmupSnapshot struct {
	Started bool
	Done    bool
	OK      bool
	MS      int64
	Error   map[string]any
}

// WarmupSource supplies the current warmup snapshot.
type WarmupSource func() WarmupSnapshot

// metrics aggregates request counters and latency windows. One lock
// covers the request-level state; the in-flight chat gate has its own.
type metrics struct {
	mu               sync.Mutex
	startedAt        time.Time
	requestsTotal    int64
	errorsTotal      int64
	rateLimitedTotal int64
	byPath           map[string]int64
	byStatus         map[string]int64
	latencyMS        []int64
	chatMS           []int64
	plansSavedTotal  int64
	lastPlanID       string

	inflightMu    sync.Mutex
	chatInflight  int
	maxInflight   int
	chatBusyTotal int64
}

func newMetrics(maxInflight int) *metrics {
	return &metrics{
		startedAt:   time.Now(),
		byPath:      make(map[string]int64),
		byStatus:    make(map[string]int64),
		maxInflight: maxInflight,
	}
}

func (m *metrics) record(path string, status int, latencyMS int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++
	if status >= 400 {
		m.errorsTotal++
	}
	m.byPath[path]++
	m.byStatus[strconv.Itoa(status)]++
	m.latencyMS = appendWindow(m.latencyMS, latencyMS, latencyWindow)
}

func (m *metrics) recordChat(ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatMS = appendWindow(m.chatMS, ms, chatWindow)
}

func (m *metrics) recordRateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitedTotal++
}

func (m *metrics) recordPlanSaved(planID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plansSavedTotal++
	m.lastPlanID = planID
}

// acquireChat admits a chat when under the in-flight cap.
func (m *metrics) acquireChat() bool {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if m.chatInflight >= m.maxInflight {
		m.chatBusyTotal++
		return false
	}
	m.chatInflight++
	return true
}

func (m *metrics) releaseChat() {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if m.chatInflight > 0 {
		m.chatInflight--
	}
}

// snapshot builds the /metrics document.
func (m *metrics) snapshot(warmup WarmupSnapshot) map[string]any {
	m.mu.Lock()
	lat := append([]int64(nil), m.latencyMS...)
	chat := append([]int64(nil), m.chatMS...)
	byPath := make(map[string]int64, len(m.byPath))
	for k, v := range m.byPath {
		byPath[k] = v
	}
	byStatus := make(map[string]int64, len(m.byStatus))
	for k, v := range m.byStatus {
		byStatus[k] = v
	}
	doc := map[string]any{
		"ok":                 true,
		"uptime_s":           int64(time.Since(m.startedAt).Seconds()),
		"requests_total":     m.requestsTotal,
		"errors_total":       m.errorsTotal,
		"rate_limited_total": m.rateLimitedTotal,
		"plans_saved_total":  m.plansSavedTotal,
		"last_plan_id":       m.lastPlanID,
		"by_path":            byPath,
		"by_status":          byStatus,
	}
	m.mu.Unlock()

	sortInt64(lat)
	sortInt64(chat)
	doc["latency_ms_p50"] = percentile(lat, 0.50)
	doc["latency_ms_p95"] = percentile(lat, 0.95)
	doc["latency_ms_p99"] = percentile(lat, 0.99)
	doc["latency_samples"] = len(lat)
	doc["chat_p95_ms"] = percentile(chat, 0.95)
	doc["chat_samples"] = len(chat)

	m.inflightMu.Lock()
	doc["chat_inflight"] = m.chatInflight
	doc["max_chat_inflight"] = m.maxInflight
	doc["chat_busy_total"] = m.chatBusyTotal
	m.inflightMu.Unlock()

	doc["warmup_started"] = warmup.Started
	doc["warmup_done"] = warmup.Done
	doc["warmup_ok"] = warmup.OK
	doc["warmup_ms"] = warmup.MS
	doc["warmup_error"] = warmup.Error
	return doc
}

// percentile indexes into sorted values at round((n-1)*p).
func percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	idx := int(float64(n-1)*p + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func appendWindow(w []int64, v int64, max int) []int64 {
	w = append(w, v)
	if len(w) > max {
		w = w[len(w)-max:]
	}
	return w
}

func sortInt64(s []int64) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
