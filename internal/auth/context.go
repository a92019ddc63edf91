package auth

import "context"

type contextKey struct{}

// AuthContext is attached to a request once its bearer token is verified and
// the caller has passed the allowlist.
type AuthContext struct {
	Subject     string
	Email       string
	PhoneNumber string
	// Enrolled is set when the caller was added to the allowlist by this request.
	Enrolled bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// Identifier returns the email if present, otherwise the phone number.
func Identifier(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	if ac.Email != "" {
		return ac.Email
	}
	return ac.PhoneNumber
}

func IsAuthenticated(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}
