package auth

import (
	"context"
)

// contextKey is a custom type used for context keys to avoid collisions.
type contextKey string

// UsernameKey holds the username validated by the session gate.
const UsernameKey contextKey = "username"

// WithUsername returns a copy of ctx carrying a validated username.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, UsernameKey, username)
}

// UsernameFromContext retrieves the username stored by the session gate.
// Returns "" and false if the request never passed the gate.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok && username != ""
}
