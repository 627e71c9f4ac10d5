package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Authenticator turns a bearer credential into an active User.
type Authenticator struct {
	secret string
	users  UserRepository
}

// NewAuthenticator creates an Authenticator that verifies tokens signed
// with secret and looks subjects up in users.
func NewAuthenticator(secret string, users UserRepository) *Authenticator {
	return &Authenticator{secret: secret, users: users}
}

// Authenticate verifies credential and returns its user. Every failure
// wraps one of ErrMissingCredentials, ErrTokenInvalid, ErrUserNotFound or
// ErrUserInactive.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrMissingCredentials
	}

	claims, err := ParseToken(credential, a.secret)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolving token subject: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" value.
// It returns "" when the header uses another scheme.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
