// Package requestctx carries per-request values from the HTTP layer into
// domain code, which never sees gin.Context.
package requestctx

import "context"

type ctxKey struct{}

var requestIDKey ctxKey

// WithRequestID returns ctx carrying requestID. A nil ctx starts from Background.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id stored by WithRequestID, or "".
// Usage records and generation logs are tagged with it.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
