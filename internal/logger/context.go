package logger

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	callerKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithCaller stores the identity of the participant making the request.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Caller returns the caller identity, or "" if none was supplied.
func Caller(ctx context.Context) string {
	c, _ := ctx.Value(callerKey).(string)
	return c
}
