package common

import "context"

// AuthContext holds the authenticated identity resolved from a bearer token.
// Every request past the auth middleware carries one; handlers read it
// instead of re-parsing tokens.
type AuthContext struct {
	UserID string
	FirmID string
	Role   string
}

// IsAdmin reports whether the authenticated user is a firm admin.
func (a *AuthContext) IsAdmin() bool {
	return a != nil && a.Role == "admin"
}

type contextKey int

const authContextKey contextKey = iota

// WithAuthContext stores an AuthContext in the request context.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// AuthContextFromContext retrieves the AuthContext from context, or nil if absent.
func AuthContextFromContext(ctx context.Context) *AuthContext {
	ac, _ := ctx.Value(authContextKey).(*AuthContext)
	return ac
}
