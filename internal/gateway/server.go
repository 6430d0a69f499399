// Package gateway is the HTTP front door: admission control, request
// identifiers, metrics, and JSONL request logging in front of the
// orchestrator.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	aicore "github.com/nevindra/aicore"
)

// Admission defaults.
const (
	DefaultBindAddr        = "127.0.0.1:10010"
	DefaultMaxBodyBytes    = 256 << 10
	DefaultMaxMessageChars = 32000
	DefaultRateLimit       = 30
	DefaultRateWindow      = 60 * time.Second
	DefaultMaxChatInflight = 4

	healthLLMTimeout = 15 * time.Second
)

// ChatHandler runs one conversational turn.
type ChatHandler interface {
	HandleChat(ctx context.Context, message, sessionID, planID string) aicore.Result
}

// Pinger performs a deep LLM reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries the front-door knobs.
type Config struct {
	BindAddr        string
	MaxBodyBytes    int64
	MaxMessageChars int
	RateLimit       int
	RateWindow      time.Duration
	MaxChatInflight int
	LogsDir         string
}

func (c *Config) applyDefaults() {
	if c.BindAddr == "" {
		c.BindAddr = DefaultBindAddr
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.MaxMessageChars <= 0 {
		c.MaxMessageChars = DefaultMaxMessageChars
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.MaxChatInflight <= 0 {
		c.MaxChatInflight = DefaultMaxChatInflight
	}
	if c.LogsDir == "" {
		c.LogsDir = "logs"
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithWarmupSource wires the warmup snapshot into /health and /metrics.
func WithWarmupSource(src WarmupSource) Option {
	return func(s *Server) { s.warmup = src }
}

// Server is the front door.
type Server struct {
	cfg     Config
	handler ChatHandler
	pinger  Pinger
	warmup  WarmupSource
	limiter *rateLimiter
	metrics *metrics
	reqlog  *requestLog
	logger  *slog.Logger
	httpSrv *http.Server
}

// New creates a Server.
func New(cfg Config, handler ChatHandler, pinger Pinger, opts ...Option) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:     cfg,
		handler: handler,
		pinger:  pinger,
		warmup:  func() WarmupSnapshot { return WarmupSnapshot{} },
		limiter: newRateLimiter(cfg.RateLimit, cfg.RateWindow),
		metrics: newMetrics(cfg.MaxChatInflight),
		reqlog:  newRequestLog(filepath.Join(cfg.LogsDir, "gateway_requests.jsonl")),
		logger:  aicore.NopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           http.HandlerFunc(s.route),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway: listening", "addr", s.cfg.BindAddr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// route is the single entry point for every request.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	requestID := aicore.NewID()
	start := time.Now()
	remote := remoteIP(r)

	rec := requestRecord{
		RequestID: requestID,
		Remote:    remote,
		Method:    r.Method,
		Path:      r.URL.Path,
	}
	status := http.StatusInternalServerError
	defer func() {
		rec.Status = status
		rec.LatencyMS = time.Since(start).Milliseconds()
		s.metrics.record(r.URL.Path, status, rec.LatencyMS)
		s.reqlog.Append(rec)
	}()

	w.Header().Set("X-Request-Id", requestID)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		status = s.handleHealth(w)
	case r.Method == http.MethodGet && r.URL.Path == "/health/llm":
		status = s.handleHealthLLM(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/metrics":
		status = s.handleMetrics(w)
	case r.Method == http.MethodPost && r.URL.Path == "/chat":
		status = s.handleChat(w, r, remote, &rec)
	default:
		status = writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": aicore.ErrCodeNotFound})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter) int {
	snap := s.warmup()
	if snap.Done && !snap.OK {
		return writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": aicore.ErrCodeWarmupFailed})
	}
	return writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleHealthLLM(w http.ResponseWriter, r *http.Request) int {
	ctx, cancel := context.WithTimeout(r.Context(), healthLLMTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		details := map[string]any{"message": err.Error()}
		var le *aicore.ErrLLM
		if errors.As(err, &le) {
			details = le.Detail()
			details["error"] = le.Code
		}
		return writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": aicore.ErrCodeLLMUnreachable, "details": details})
	}
	return writeJSON(w, http.StatusOK, map[string]any{"ok": true, "details": map[string]any{"reachable": true}})
}

func (s *Server) handleMetrics(w http.ResponseWriter) int {
	return writeJSON(w, http.StatusOK, s.metrics.snapshot(s.warmup()))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, remote string, rec *requestRecord) int {
	if ok, retryAfter := s.limiter.Allow(remote); !ok {
		s.metrics.recordRateLimited()
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"ok": false, "error": aicore.ErrCodeRateLimited, "retry_after_s": retryAfter,
		})
	}

	if !s.metrics.acquireChat() {
		return writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": aicore.ErrCodeBusy})
	}
	defer s.metrics.releaseChat()

	raw, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		return writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": aicore.ErrCodeInvalidSchema})
	}
	if int64(len(raw)) > s.cfg.MaxBodyBytes {
		return writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"ok": false, "error": aicore.ErrCodePayloadTooLarge, "limit_bytes": s.cfg.MaxBodyBytes,
		})
	}

	var body struct {
		Message   *string `json:"message"`
		SessionID any     `json:"session_id"`
		PlanID    any     `json:"plan_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == nil {
		return writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false, "error": aicore.ErrCodeInvalidSchema, "details": map[string]any{"missing_or_type": "message"},
		})
	}
	message := *body.Message
	if utf8.RuneCountInString(message) > s.cfg.MaxMessageChars {
		return writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"ok": false, "error": aicore.ErrCodePayloadTooLarge, "limit_chars": s.cfg.MaxMessageChars,
		})
	}
	message = aicore.SanitizeMessage(message)
	if message == "" {
		return writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false, "error": aicore.ErrCodeInvalidSchema, "details": map[string]any{"missing_or_type": "message"},
		})
	}

	sessionID := "default"
	switch v := body.SessionID.(type) {
	case nil:
	case string:
		if v != "" {
			sessionID = v
		}
	default:
		return writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false, "error": aicore.ErrCodeInvalidSchema, "details": map[string]any{"session_id": "must be string"},
		})
	}

	planID := ""
	switch v := body.PlanID.(type) {
	case nil:
	case string:
		planID = v
	default:
		return writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false, "error": aicore.ErrCodeInvalidSchema, "details": map[string]any{"plan_id": "must be string"},
		})
	}

	rec.SessionID = sessionID
	rec.PlanID = planID

	result := s.handler.HandleChat(r.Context(), message, sessionID, planID)

	if cp := result.Checkpoint; cp != nil && cp.OK {
		pid := cp.PlanID
		if pid == "" {
			if p, ok := result.Plan["plan_id"].(string); ok {
				pid = p
			}
		}
		if pid != "" {
			s.metrics.recordPlanSaved(pid)
			rec.PlanID = pid
		}
	}

	total := result.TimingMS.Total
	rec.ChatTotalMS = &total
	s.metrics.recordChat(total)

	return writeJSONValue(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) int {
	return writeJSONValue(w, status, payload)
}

func writeJSONValue(w http.ResponseWriter, status int, payload any) int {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"ok":false,"error":"` + aicore.ErrCodeGatewayException + `"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	return status
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
