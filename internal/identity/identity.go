// Package identity carries the authenticated caller on a request context.
package identity

import (
	"context"
	"encoding/json"
)

// Identity is the caller resolved by the authentication collaborator.
type Identity struct {
	UserID string
	Email  string
	// Token is the bearer token the caller presented, if any.
	Token string
}

type ctxKey struct{}

// WithIdentity returns a child context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity on ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// Claims encodes the identity as JWT-style claims for row-level policies.
func (id Identity) Claims() string {
	b, _ := json.Marshal(map[string]string{
		"sub":   id.UserID,
		"email": id.Email,
		"role":  "authenticated",
	})
	return string(b)
}
