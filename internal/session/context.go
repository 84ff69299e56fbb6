// Package session carries the signed-in user explicitly through calls and
// keeps it in the local preference store between runs.
package session

import (
	"context"
	"strings"
)

// Context identifies who a discovery session acts for.
type Context struct {
	UserID string
	Token  string
}

// Valid reports whether the context names a user.
func (c Context) Valid() bool {
	return strings.TrimSpace(c.UserID) != ""
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying sc.
func NewContext(ctx context.Context, sc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the session carried by ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	sc, ok := ctx.Value(ctxKey{}).(Context)
	return sc, ok
}

// TokenFromContext is an api.TokenSource.
func TokenFromContext(ctx context.Context) string {
	sc, _ := FromContext(ctx)
	return sc.Token
}
