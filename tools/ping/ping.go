// Package ping provides the liveness baseline capability.
package ping

import (
	"context"

	aicore "github.com/nevindra/aicore"
)

// Provider answers every method with {pong:true}.
type Provider struct{}

var _ aicore.ToolProvider = (*Provider)(nil)

// New creates a ping Provider.
func New() *Provider { return &Provider{} }

// Run always pongs. The result body is exactly {pong:true} so callers
// can rely on the shape.
func (p *Provider) Run(_ context.Context, _ string, _ map[string]any) aicore.ToolResult {
	return aicore.ToolResult{OK: true, Result: map[string]any{"pong": true}}
}
