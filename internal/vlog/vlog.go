// Package vlog threads a structured logger through context.Context, the
// way grafana/nanogit's log package attaches a logger to client calls.
// The default logger is a no-op discard handler; callers opt into
// verbosity by attaching their own *slog.Logger via NewContext.
package vlog

import (
	"context"
	"io"
	"log/slog"
)

type ctxKey struct{}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// NewContext attaches a logger to ctx, returning a child context that
// From will recover it from.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger attached to ctx, or a silent discard logger if
// none was attached.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return discard
}
