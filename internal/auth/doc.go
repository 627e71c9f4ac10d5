// Package auth resolves connection credentials into user identities.
//
// Beacon Notify Core does not issue sessions to end users. An upstream
// identity service signs HS256 access tokens whose subject is a row in the
// users table; this package verifies those tokens (golang-jwt/jwt/v5) and
// confirms the subject is still an active account before a realtime
// connection is admitted.
//
// GenerateAccessToken exists for operators and tests: the `token` CLI
// command uses it to mint a short-lived token for an existing user.
package auth
