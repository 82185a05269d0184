package audit

import (
	"context"

	"github.com/google/uuid"
)

// RequestInfo identifies who submitted a candidate. Transports fill it in
// and the gateway carries it into every audit event.
type RequestInfo struct {
	ID       string
	Source   string // "http" or "mcp"
	Caller   string // from a trusted upstream header, if any
	ClientIP string
}

type requestKey struct{}

// WithRequest returns ctx carrying info. An empty ID is filled with a new
// UUID.
func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	return context.WithValue(ctx, requestKey{}, info)
}

// RequestFromContext returns the request info, or a zero value.
func RequestFromContext(ctx context.Context) RequestInfo {
	if info, ok := ctx.Value(requestKey{}).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}

// EnsureRequest returns ctx unchanged if it already carries request info,
// otherwise one with a fresh ID.
func EnsureRequest(ctx context.Context, source string) (context.Context, RequestInfo) {
	if info, ok := ctx.Value(requestKey{}).(RequestInfo); ok && info.ID != "" {
		return ctx, info
	}
	ctx = WithRequest(ctx, RequestInfo{Source: source})
	return ctx, RequestFromContext(ctx)
}
