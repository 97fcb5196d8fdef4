// Package auth resolves bearer tokens into the Identity every handler consumes.
// Two interchangeable authenticators exist: LocalAuthenticator verifies tokens
// signed with a process secret, FederatedVerifier verifies tokens from an
// external identity provider against its published key set.
package auth

import (
	"context"
	"fmt"
)

// Preferences are the per-user display settings carried with an Identity.
type Preferences struct {
	NotificationDays int    `json:"notificationDays"`
	Theme            string `json:"theme"`
	Units            string `json:"units"`
}

// DefaultPreferences are assigned to identities that carry none.
func DefaultPreferences() Preferences {
	return Preferences{NotificationDays: 3, Theme: "dark", Units: "imperial"}
}

// Identity is the resolved principal of a request. It is built fresh per
// request and never persisted by this package.
type Identity struct {
	SubjectID   string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	HouseholdID *string     `json:"household_id"`
	Preferences Preferences `json:"preferences"`
}

// TokenAuthenticator turns a raw bearer token into an Identity. Failures are
// *AuthError values whose kind is ErrUnauthorized or ErrServiceUnavailable.
type TokenAuthenticator interface {
	ResolveIdentity(ctx context.Context, token string) (*Identity, error)
}

// ResolveIdentityOrNone returns nil instead of an error, for routes that allow
// anonymous access.
func ResolveIdentityOrNone(ctx context.Context, a TokenAuthenticator, token string) (ident *Identity) {
	if a == nil || token == "" {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			ident = nil
		}
	}()
	ident, err := a.ResolveIdentity(ctx, token)
	if err != nil {
		return nil
	}
	return ident
}

// resolveSafely normalizes a panic inside resolve into an unauthorized error.
func resolveSafely(resolve func() (*Identity, error)) (ident *Identity, err error) {
	defer func() {
		if r := recover(); r != nil {
			ident = nil
			err = unauthorized(fmt.Errorf("panic during verification: %v", r))
		}
	}()
	return resolve()
}

type identityKey struct{}

func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(*Identity)
	return ident, ok && ident != nil
}
