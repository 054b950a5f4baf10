package auth

import "context"

// Identity is the authentication state of a caller.
type Identity struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	UserID          string `json:"user_id,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
	Email           string `json:"email,omitempty"`
}

// Anonymous is the identity of a caller with no valid token.
var Anonymous = Identity{}

// SameAs reports whether two identities refer to the same principal.
func (i Identity) SameAs(other Identity) bool {
	return i.IsAuthenticated == other.IsAuthenticated && i.UserID == other.UserID
}

type tokenKey struct{}

// WithToken stores the caller's bearer token so outbound service calls can forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token stored by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}
