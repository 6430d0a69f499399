// Package lmstudio implements aicore.Provider against a locally hosted
// OpenAI-compatible chat-completions endpoint such as LM Studio, Ollama,
// or vLLM.
package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	aicore "github.com/nevindra/aicore"
)

// DefaultTimeout bounds one chat call end to end.
const DefaultTimeout = 180 * time.Second

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client. Mostly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// Client implements aicore.Provider over the chat-completions wire
// contract: request {model, messages, temperature, max_tokens,
// stream:false}; response must carry choices[0].message.content.
type Client struct {
	baseURL string
	modelID string
	client  *http.Client
	logger  *slog.Logger
}

var _ aicore.Provider = (*Client)(nil)

// New creates a Client for the endpoint at baseURL (scheme included,
// without the /v1/chat/completions path).
func New(baseURL, modelID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		modelID: modelID,
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  aicore.NopLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return "lmstudio" }

// chatRequest is the wire request body.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []aicore.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Stream      bool                 `json:"stream"`
}

// chatResponse is the subset of the wire response this client reads.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends one non-streaming chat request. Failures return *ErrLLM;
// the caller decides whether they fail the turn.
func (c *Client) Chat(ctx context.Context, req aicore.ChatRequest) (aicore.ChatResponse, error) {
	start := time.Now()

	body := chatRequest{
		Model:       c.modelID,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return aicore.ChatResponse{}, &aicore.ErrLLM{Code: aicore.ErrCodeLLMException, Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return aicore.ChatResponse{}, &aicore.ErrLLM{Code: aicore.ErrCodeLLMException, Reason: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Debug("lmstudio: transport error", "error", err, "duration", time.Since(start))
		return aicore.ChatResponse{}, &aicore.ErrLLM{Code: aicore.ErrCodeLLMException, Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return aicore.ChatResponse{}, &aicore.ErrLLM{Code: aicore.ErrCodeLLMException, Reason: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("lmstudio: http error", "status", resp.StatusCode, "duration", time.Since(start))
		return aicore.ChatResponse{}, &aicore.ErrLLM{
			Code:   aicore.ErrCodeHTTPError,
			Reason: http.StatusText(resp.StatusCode),
			Status: resp.StatusCode,
			Body:   string(raw),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return aicore.ChatResponse{}, &aicore.ErrLLM{Code: aicore.ErrCodeLLMException, Reason: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return aicore.ChatResponse{}, &aicore.ErrLLM{Code: aicore.ErrCodeNoChoices, Reason: "response carries no choices", Body: string(raw)}
	}

	c.logger.Debug("lmstudio: chat ok", "chars", len(parsed.Choices[0].Message.Content), "duration", time.Since(start))
	return aicore.ChatResponse{Content: parsed.Choices[0].Message.Content}, nil
}

// Ping performs a minimal reachability check against the endpoint.
// Used by the deep health probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Chat(ctx, aicore.ChatRequest{
		Messages: []aicore.ChatMessage{
			aicore.SystemMessage("Reply with exactly: OK"),
			aicore.UserMessage("OK"),
		},
		Temperature: 0,
		MaxTokens:   8,
	})
	return err
}
