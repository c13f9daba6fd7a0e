package logging

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names.
const (
	FieldRequestID  = "request_id"
	FieldComponent  = "component"
	FieldClassifier = "classifier"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldCount      = "count"
	FieldState      = "state"
	FieldAddress    = "address"
	FieldAlertID    = "alert_id"
)

type contextKey string

const requestIDKey contextKey = "logging_request_id"

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns the global logger annotated with the request ID
// carried by ctx, if any.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if id := RequestID(ctx); id != "" {
		return Logger.With(FieldRequestID, id)
	}
	return Logger
}
