package view

import (
	"context"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

type contextKey string

const requestContextKey contextKey = "requestContext"

// RequestContext is the per-request snapshot the templates see: who is
// logged in and the flash messages drained for this request.
type RequestContext struct {
	CurrentUser *types.PublicUser
	Messages    []types.Message
}

func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext returns the snapshot stored on ctx, or an anonymous one.
func FromContext(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey).(RequestContext)
	return rc
}

// CurrentUser returns the logged-in user, or nil.
func CurrentUser(ctx context.Context) *types.PublicUser {
	return FromContext(ctx).CurrentUser
}
