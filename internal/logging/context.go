package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type attemptKey struct{}

// NewAttemptID returns a fresh identifier for one update attempt.
func NewAttemptID() string {
	return uuid.NewString()
}

// WithAttemptID stores the attempt identifier on the context.
func WithAttemptID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, attemptKey{}, id)
}

// AttemptIDFromContext returns the attempt identifier stored on ctx.
func AttemptIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(attemptKey{}).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if id, ok := AttemptIDFromContext(ctx); ok {
		return []slog.Attr{slog.String(FieldAttemptID, id)}
	}
	return nil
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
