package auth

import (
	"context"
	"errors"
	"testing"
)

func TestAuthenticator(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	active := createUser(t, repo, "active", true)
	inactive := createUser(t, repo, "inactive", false)

	tokenFor := func(id string) string {
		t.Helper()
		tok, err := GenerateAccessToken(&User{ID: id}, testSecret, 5)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error = %v", err)
		}
		return tok
	}

	authn := NewAuthenticator(testSecret, repo)

	tests := []struct {
		name       string
		credential string
		wantErr    error
		wantUser   string
	}{
		{"active user", tokenFor(active.ID), nil, active.ID},
		{"padded credential", "  " + tokenFor(active.ID) + "\n", nil, active.ID},
		{"empty", "", ErrMissingCredentials, ""},
		{"bad token", "nope", ErrTokenInvalid, ""},
		{"unknown subject", tokenFor("usr-ghost"), ErrUserNotFound, ""},
		{"inactive user", tokenFor(inactive.ID), ErrUserInactive, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := authn.Authenticate(context.Background(), tt.credential)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if user.ID != tt.wantUser {
				t.Errorf("user = %s, want %s", user.ID, tt.wantUser)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer   abc", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
	}

	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
