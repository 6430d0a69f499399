package aicore

import "context"

// Provider abstracts the LLM backend.
type Provider interface {
	// Chat sends a request and returns the complete response.
	// Failures return *ErrLLM; the caller decides surfacing policy.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "lmstudio").
	Name() string
}

// ChatRequest carries one chat-completions invocation.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the parsed model output.
type ChatResponse struct {
	Content string
}
