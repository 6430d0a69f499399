package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	aicore "github.com/nevindra/aicore"
)

// allowLoopback lets tests fetch from httptest servers, which bind to
// 127.0.0.1 and would otherwise trip the SSRF guard.
func allowLoopback(t *testing.T) {
	t.Helper()
	t.Setenv(AllowlistEnv, "127.0.0.1")
}

func TestHTTPGetBlockedWithoutAllowlist(t *testing.T) {
	t.Setenv(AllowlistEnv, "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret"))
	}))
	defer srv.Close()

	res := New().Run(context.Background(), "http_get", map[string]any{"url": srv.URL})
	if res.OK || res.Error != aicore.ErrCodeLANHostNotAllowlisted {
		t.Fatalf("loopback fetch must be blocked, got %+v", res)
	}
}

func TestHTTPGetOK(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "aicore") {
			t.Errorf("unexpected user agent: %q", ua)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("plain body"))
	}))
	defer srv.Close()

	res := New().Run(context.Background(), "http_get", map[string]any{"url": srv.URL})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Result["status"] != 200 || res.Result["text"] != "plain body" {
		t.Errorf("wrong result: %v", res.Result)
	}
	if res.Result["body_truncated"] != false || res.Result["text_truncated"] != false {
		t.Error("no truncation expected")
	}
}

func TestHTTPGetJSON(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":"value"}`))
	}))
	defer srv.Close()

	res := New().Run(context.Background(), "http_get", map[string]any{"url": srv.URL})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	parsed, ok := res.Result["json"].(map[string]any)
	if !ok || parsed["key"] != "value" {
		t.Errorf("json should be parsed: %v", res.Result["json"])
	}
}

func TestHTTPGetBodyTruncation(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	res := New().Run(context.Background(), "http_get", map[string]any{
		"url": srv.URL, "max_bytes": float64(100),
	})
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Result["body_truncated"] != true {
		t.Error("body should report truncation")
	}
	if text := res.Result["text"].(string); len(text) != 100 {
		t.Errorf("text should be cut at max_bytes, got %d", len(text))
	}
}

func TestHTTPGetTextTruncation(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("y", 300)))
	}))
	defer srv.Close()

	res := New().Run(context.Background(), "http_get", map[string]any{
		"url": srv.URL, "max_text_chars": float64(50),
	})
	if res.Result["text_truncated"] != true {
		t.Error("text should report truncation")
	}
	if text := res.Result["text"].(string); len(text) != 50 {
		t.Errorf("expected 50 chars, got %d", len(text))
	}
}

func TestHTTPGetNon200StillOK(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not here"))
	}))
	defer srv.Close()

	res := New().Run(context.Background(), "http_get", map[string]any{"url": srv.URL})
	if !res.OK {
		t.Fatal("an HTTP error status is still a successful fetch")
	}
	if res.Result["status"] != 404 {
		t.Errorf("wrong status: %v", res.Result["status"])
	}
}

func TestHTTPGetInvalidArgs(t *testing.T) {
	p := New()
	cases := []map[string]any{
		{},
		{"url": "   "},
		{"url": "ftp://example.com/file"},
		{"url": "not a url at all"},
		{"url": 42},
	}
	for _, args := range cases {
		res := p.Run(context.Background(), "http_get", args)
		if res.OK || res.Error != aicore.ErrCodeInvalidArgs {
			t.Errorf("args %v: expected INVALID_ARGS, got %+v", args, res)
		}
	}
}

func TestHTTPGetUnknownMethod(t *testing.T) {
	res := New().Run(context.Background(), "http_post", nil)
	if res.OK || res.Error != aicore.ErrCodeUnknownMethod {
		t.Fatalf("expected UNKNOWN_METHOD, got %+v", res)
	}
}

func TestHTTPGetEmptyMethod(t *testing.T) {
	res := New().Run(context.Background(), "", nil)
	if res.OK || res.Error != aicore.ErrCodeInvalidMethod {
		t.Fatalf("expected INVALID_METHOD, got %+v", res)
	}
}

func TestHTTPGetRedirectGuard(t *testing.T) {
	// The first hop is allowlisted; the redirect target is a raw
	// loopback IP that is not, so the guard fires mid-chain.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://127.0.0.99:1/", http.StatusFound)
	}))
	defer srv.Close()
	t.Setenv(AllowlistEnv, "127.0.0.1")

	res := New().Run(context.Background(), "http_get", map[string]any{"url": srv.URL})
	if res.OK || res.Error != aicore.ErrCodeLANHostNotAllowlisted {
		t.Fatalf("redirect into blocked space must fail, got %+v", res)
	}
}

func TestDecodeBodyCharset(t *testing.T) {
	// "héllo" in ISO-8859-1.
	raw := []byte{'h', 0xe9, 'l', 'l', 'o'}
	if got := decodeBody(raw, "text/html; charset=iso-8859-1"); got != "héllo" {
		t.Errorf("latin-1 should decode, got %q", got)
	}
	// Invalid UTF-8 without a charset falls back to replacement.
	if got := decodeBody([]byte{0xff, 'a'}, "text/plain"); !strings.Contains(got, "a") || strings.Contains(got, "\xff") {
		t.Errorf("invalid bytes should be replaced, got %q", got)
	}
}

func TestIntArg(t *testing.T) {
	args := map[string]any{"f": float64(7), "i": 9}
	if intArg(args, "f", 1) != 7 || intArg(args, "i", 1) != 9 || intArg(args, "missing", 1) != 1 {
		t.Error("wrong coercion")
	}
	if intArg(map[string]any{"s": "10"}, "s", 3) != 3 {
		t.Error("strings fall back to the default")
	}
}
