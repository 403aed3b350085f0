// Package auth supplies short-lived bearer credentials for the document
// store. Providers never return errors: credential absence means "operate
// offline" and the sync engine degrades accordingly.
package auth

import (
	"context"
	"os"
	"strings"
)

// TokenProvider exchanges the signed-in identity for a bearer token scoped to
// the document store. ok is false when no credential is available.
type TokenProvider interface {
	AccessToken(ctx context.Context) (token string, ok bool)
}

// Static is a fixed-token provider. An empty token reads as "no credential".
type Static struct {
	Token string
}

// AccessToken returns the configured token.
func (s Static) AccessToken(_ context.Context) (string, bool) {
	if s.Token == "" {
		return "", false
	}
	return s.Token, true
}

// Env reads the token from an environment variable on every call, so a
// rotated credential is picked up without restarting.
type Env struct {
	Var string
}

// AccessToken returns the current value of the configured variable.
func (e Env) AccessToken(_ context.Context) (string, bool) {
	token := strings.TrimSpace(os.Getenv(e.Var))
	if token == "" {
		return "", false
	}
	return token, true
}

// Func adapts a closure into a TokenProvider.
type Func func(ctx context.Context) (string, bool)

// AccessToken invokes the closure.
func (f Func) AccessToken(ctx context.Context) (string, bool) {
	return f(ctx)
}
