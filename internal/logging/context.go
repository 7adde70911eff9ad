package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRequestID is the correlation identifier assigned to each inbound request.
	FieldRequestID = "request_id"
	// FieldAccountID identifies the local account acting on a request.
	FieldAccountID = "account_id"
	// FieldExperimentID is the upstream eLabFTW experiment identifier.
	FieldExperimentID = "experiment_id"
	// FieldItemID is the upstream eLabFTW item identifier.
	FieldItemID = "item_id"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	accountIDKey contextKey = "account_id"
)

// WithRequestID annotates context with a request correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}

// WithAccountID annotates context with the acting account.
func WithAccountID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, accountIDKey, id)
}

// AccountIDFromContext returns the acting account if present.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(accountIDKey).(int64)
	return v, ok && v > 0
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id, ok := RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRequestID, id))
	}
	if id, ok := AccountIDFromContext(ctx); ok {
		attrs = append(attrs, Int64(FieldAccountID, id))
	}
	return attrs
}
