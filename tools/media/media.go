// Package media declares the audio and video capability slots. Both are
// registered so plans can name them, but every method reports
// UNSUPPORTED until a backend exists.
package media

import (
	"context"

	aicore "github.com/nevindra/aicore"
)

// Provider is a declared-but-unimplemented capability.
type Provider struct {
	kind string
}

var _ aicore.ToolProvider = (*Provider)(nil)

// NewAudio creates the audio slot.
func NewAudio() *Provider { return &Provider{kind: "audio"} }

// NewVideo creates the video slot.
func NewVideo() *Provider { return &Provider{kind: "video"} }

// Run reports that no backend is available.
func (p *Provider) Run(_ context.Context, method string, _ map[string]any) aicore.ToolResult {
	return aicore.ToolResult{
		Error: aicore.ErrCodeUnsupported,
		Details: map[string]any{
			"provider": p.kind,
			"method":   method,
			"message":  "no " + p.kind + " backend is configured",
		},
	}
}
