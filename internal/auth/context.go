package auth

import "context"

type contextKey struct{}

// Principal is the authenticated caller, attached to the request context by
// the auth middleware.
type Principal struct {
	UserID    int64
	Email     string
	SessionID string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

func UserID(ctx context.Context) int64 {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return 0
	}
	return p.UserID
}

func SessionID(ctx context.Context) string {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	return p.SessionID
}
