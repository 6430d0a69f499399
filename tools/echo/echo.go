// Package echo provides the argument-mirroring baseline capability.
package echo

import (
	"context"

	aicore "github.com/nevindra/aicore"
)

// Provider reflects the call back to the caller.
type Provider struct{}

var _ aicore.ToolProvider = (*Provider)(nil)

// New creates an echo Provider.
func New() *Provider { return &Provider{} }

// Run mirrors the method and args.
func (p *Provider) Run(_ context.Context, method string, args map[string]any) aicore.ToolResult {
	if args == nil {
		args = map[string]any{}
	}
	return aicore.ToolResult{OK: true, Result: map[string]any{
		"ok":     true,
		"method": method,
		"args":   args,
	}}
}
