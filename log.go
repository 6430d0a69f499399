package aicore

import (
	"context"
	"log/slog"
)

// NopLogger returns a logger that discards all output. Components fall
// back to it when no logger is configured.
func NopLogger() *slog.Logger {
	return nopLogger
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
