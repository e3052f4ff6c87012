package auth

import (
	"context"

	"pai-backend/internal/database"
)

// Identity is who a request acts for. UserID is set for authenticated users;
// otherwise SessionKey names the guest session, and is empty when the guest
// has not been issued one yet.
type Identity struct {
	UserID     *uint
	Username   string
	SessionKey string
}

func (i Identity) Authenticated() bool {
	return i.UserID != nil
}

func (i Identity) HasSession() bool {
	return i.Authenticated() || i.SessionKey != ""
}

func (i Identity) Owner() database.Owner {
	return database.Owner{UserID: i.UserID, SessionKey: i.SessionKey}
}

type contextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// FromContext returns the zero Identity, an anonymous guest without a
// session, when the middleware did not run.
func FromContext(ctx context.Context) Identity {
	identity, _ := ctx.Value(contextKey{}).(Identity)
	return identity
}
