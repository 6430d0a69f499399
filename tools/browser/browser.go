// Package browser provides the HTTP fetch capability. Every request
// passes an SSRF guard: hostnames are DNS-resolved and rejected when
// any resolved address falls in a private, loopback, link-local, or
// carrier-grade NAT range, unless the host is explicitly allowlisted.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/text/encoding/htmlindex"

	aicore "github.com/nevindra/aicore"
)

// Request caps and defaults.
const (
	DefaultTimeoutSec  = 60
	MaxTimeoutSec      = 300
	DefaultMaxBytes    = 2_000_000
	MaxMaxBytes        = 200_000_000
	DefaultMaxTextChar = 200_000
	MaxMaxTextChar     = 200_000_000

	// AllowlistEnv names the comma-separated host allowlist.
	AllowlistEnv = "AICORE_HTTP_ALLOWLIST"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithResolver replaces the DNS resolver. Mostly for tests.
func WithResolver(r interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}) Option {
	return func(p *Provider) { p.resolver = r }
}

// WithTransport replaces the HTTP transport. Mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Provider) { p.transport = rt }
}

// Provider implements aicore.ToolProvider with a single method,
// http_get.
type Provider struct {
	resolver  resolver
	transport http.RoundTripper
	logger    *slog.Logger
}

var _ aicore.ToolProvider = (*Provider)(nil)

// New creates a browser Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		resolver:  net.DefaultResolver,
		transport: http.DefaultTransport,
		logger:    aicore.NopLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run dispatches a method. Errors are returned in the result envelope,
// never raised; a failed fetch fails only its owning step.
func (p *Provider) Run(ctx context.Context, method string, args map[string]any) aicore.ToolResult {
	switch method {
	case "http_get":
		return p.httpGet(ctx, args)
	case "":
		return aicore.ToolResult{
			Error:   aicore.ErrCodeInvalidMethod,
			Details: map[string]any{"reason": "method is required"},
		}
	default:
		return aicore.ToolResult{
			Error:   aicore.ErrCodeUnknownMethod,
			Details: map[string]any{"method": method, "supported": []string{"http_get"}},
		}
	}
}

func (p *Provider) httpGet(ctx context.Context, args map[string]any) aicore.ToolResult {
	start := time.Now()

	rawURL, _ := args["url"].(string)
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return aicore.ToolResult{Error: aicore.ErrCodeInvalidArgs, Details: map[string]any{"message": "url is required"}}
	}

	timeoutSec := intArg(args, "timeout_sec", DefaultTimeoutSec)
	if timeoutSec <= 0 || timeoutSec > MaxTimeoutSec {
		timeoutSec = MaxTimeoutSec
	}
	maxBytes := intArg(args, "max_bytes", DefaultMaxBytes)
	if maxBytes <= 0 || maxBytes > MaxMaxBytes {
		maxBytes = MaxMaxBytes
	}
	maxTextChars := intArg(args, "max_text_chars", DefaultMaxTextChar)
	if maxTextChars <= 0 || maxTextChars > MaxMaxTextChar {
		maxTextChars = MaxMaxTextChar
	}
	extract, _ := args["extract"].(string)

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return aicore.ToolResult{Error: aicore.ErrCodeInvalidArgs, Details: map[string]any{"message": "url must be absolute http or https", "url": rawURL}}
	}

	allowlist := hostAllowlist(AllowlistEnv)
	if code, reason := checkHost(ctx, p.resolver, u.Hostname(), allowlist); code != "" {
		p.logger.Debug("browser: host rejected", "url", rawURL, "code", code)
		return aicore.ToolResult{Error: code, Details: map[string]any{"message": reason, "url": rawURL}}
	}

	client := &http.Client{
		Transport: p.transport,
		Timeout:   time.Duration(timeoutSec) * time.Second,
		// Redirect targets get the same guard as the original host.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			if code, reason := checkHost(req.Context(), p.resolver, req.URL.Hostname(), allowlist); code != "" {
				return fmt.Errorf("%s: %s", code, reason)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return aicore.ToolResult{Error: aicore.ErrCodeInvalidArgs, Details: map[string]any{"message": err.Error(), "url": rawURL}}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aicore/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		code := aicore.ErrCodeToolException
		msg := err.Error()
		switch {
		case strings.Contains(msg, aicore.ErrCodeLANHostNotAllowlisted):
			code = aicore.ErrCodeLANHostNotAllowlisted
		case strings.Contains(msg, aicore.ErrCodeDNSResolutionFailed):
			code = aicore.ErrCodeDNSResolutionFailed
		case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "Client.Timeout"):
			code = aicore.ErrCodeTimeout
		}
		p.logger.Debug("browser: fetch failed", "url", rawURL, "code", code, "duration", time.Since(start))
		return aicore.ToolResult{Error: code, Details: map[string]any{"message": msg, "url": rawURL}}
	}
	defer resp.Body.Close()

	// Read one byte past the cap so truncation is observable.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		code := aicore.ErrCodeToolException
		if errors.Is(err, context.DeadlineExceeded) {
			code = aicore.ErrCodeTimeout
		}
		return aicore.ToolResult{Error: code, Details: map[string]any{"message": err.Error(), "url": rawURL}}
	}
	bodyTruncated := len(body) > maxBytes
	if bodyTruncated {
		body = body[:maxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	text := decodeBody(body, contentType)

	if extract == "readable" && strings.Contains(contentType, "html") {
		if article, rerr := readability.FromReader(strings.NewReader(text), resp.Request.URL); rerr == nil && strings.TrimSpace(article.TextContent) != "" {
			text = strings.TrimSpace(article.TextContent)
		}
	}

	textTruncated := false
	if len(text) > maxTextChars {
		text = text[:maxTextChars]
		textTruncated = true
	}

	var parsedJSON any
	if strings.Contains(contentType, "json") {
		var v any
		if jerr := json.Unmarshal(body, &v); jerr == nil {
			parsedJSON = v
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	p.logger.Debug("browser: fetch ok", "url", rawURL, "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))
	return aicore.ToolResult{
		OK: true,
		Result: map[string]any{
			"ok":             true,
			"url":            rawURL,
			"status":         resp.StatusCode,
			"headers":        headers,
			"content_type":   contentType,
			"text":           text,
			"json":           parsedJSON,
			"body_truncated": bodyTruncated,
			"text_truncated": textTruncated,
		},
	}
}

// decodeBody decodes raw bytes using the charset named in Content-Type,
// falling back to UTF-8 with replacement of invalid sequences.
func decodeBody(body []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := params["charset"]; cs != "" && !strings.EqualFold(cs, "utf-8") {
			if enc, err := htmlindex.Get(cs); err == nil && enc != nil {
				if decoded, err := enc.NewDecoder().Bytes(body); err == nil {
					return string(decoded)
				}
			}
		}
	}
	return strings.ToValidUTF8(string(body), "�")
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
