package httpapi

import (
	"context"

	"ragservice/internal/scope"
)

type contextKey int

const visibilityKey contextKey = iota

func withVisibility(ctx context.Context, vis scope.Visibility) context.Context {
	return context.WithValue(ctx, visibilityKey, vis)
}

// VisibilityFromContext returns the Visibility the auth middleware built
// for this request. It panics if called outside a request the
// middleware has wrapped, since every handler requires it.
func VisibilityFromContext(ctx context.Context) scope.Visibility {
	vis, ok := ctx.Value(visibilityKey).(scope.Visibility)
	if !ok {
		panic("httpapi: visibility missing from context; handler not wrapped by auth middleware")
	}
	return vis
}
