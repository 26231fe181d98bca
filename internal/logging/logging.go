// Package logging provides the one helper every component-level
// constructor needs: a safe *slog.Logger default when the caller hasn't
// wired one in. Nothing in this module calls slog.SetDefault or reaches
// for a global logger — loggers are passed in at construction time and
// scoped with .With("component", ...).
package logging

import (
	"context"
	"log/slog"
)

// discardHandler drops every record it's handed.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. Callers
// use this for optional *slog.Logger constructor parameters:
//
//	func New(logger *slog.Logger) *Worker {
//	    logger = logging.Default(logger)
//	    return &Worker{logger: logger.With("component", "htmindexer")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
