package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context, falling back to the global logger.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithConnection derives a child logger tagged with the connection id and
// stores it in the returned context.
func WithConnection(ctx context.Context, connectionID string) context.Context {
	l := Ctx(ctx)
	child := l.With().Str(FieldConnectionID, connectionID).Logger()
	return WithLogger(ctx, child)
}
