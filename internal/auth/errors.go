package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidSignature   = errors.New("invalid token signature")
	ErrInvalidAudience    = errors.New("invalid token audience")
	ErrInvalidIssuer      = errors.New("invalid token issuer")
	ErrServiceUnavailable = errors.New("authentication service unavailable")
	// ErrUnauthorized is the only failure callers see besides ErrServiceUnavailable.
	ErrUnauthorized = errors.New("unauthorized")
)

// AuthError carries the kind surfaced to clients and the internal cause.
// errors.Is matches either of them.
type AuthError struct {
	Kind  error
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause == nil || e.Cause == e.Kind {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *AuthError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func unauthorized(cause error) *AuthError {
	return &AuthError{Kind: ErrUnauthorized, Cause: cause}
}

func unavailable(cause error) *AuthError {
	return &AuthError{Kind: ErrServiceUnavailable, Cause: cause}
}

// Surface collapses err to the kind a client may see: ErrServiceUnavailable
// or ErrUnauthorized.
func Surface(err error) error {
	if errors.Is(err, ErrServiceUnavailable) {
		return ErrServiceUnavailable
	}
	return ErrUnauthorized
}
