// Package log carries zap fields through a context so that every
// log line written for a request can be tied back to it.
package log

import (
	"context"

	"go.uber.org/zap"
)

type key int

const contextKey key = iota

// WithContext enriches the logger with fields from the context
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	return logger.With(Fields(ctx)...)
}

// WithFields adds log fields to the context
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	parent := Fields(ctx)
	merged := make([]zap.Field, 0, len(parent)+len(fields))
	merged = append(merged, parent...)

	return context.WithValue(ctx, contextKey, append(merged, fields...))
}

// Fields extracts log fields from the context
func Fields(ctx context.Context) []zap.Field {
	rawFields := ctx.Value(contextKey)

	if rawFields == nil {
		return []zap.Field{}
	}

	fields, ok := rawFields.([]zap.Field)

	if !ok {
		return []zap.Field{}
	}

	return fields
}

// Operation returns a logger for one operation of a component. It combines
// the component logger with any fields carried by the context.
func Operation(ctx context.Context, logger *zap.Logger, operation string) *zap.Logger {
	return WithContext(ctx, logger).With(zap.String("operation", operation))
}
