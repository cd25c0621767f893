package auth

import (
	"context"
	"errors"
)

var (
	ErrMissingAPIKey = errors.New("IBM API key not provided")
	ErrMissingToken  = errors.New("access_token missing from response")
)

// AuthError reports a failed credential exchange. It is fatal to the
// request that triggered it; the cache does not retry.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return "auth " + e.Op + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TokenSource yields bearer tokens for a single API key.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// KeySource binds a TokenCache to one API key. It is the credential
// provider handed to the enforcement and translation clients.
type KeySource struct {
	cache  *TokenCache
	apiKey string
}

func (s *KeySource) Token(ctx context.Context) (string, error) {
	return s.cache.Token(ctx, s.apiKey)
}

func (s *KeySource) ForceRefresh(ctx context.Context) (string, error) {
	return s.cache.ForceRefresh(ctx, s.apiKey)
}

func (s *KeySource) Info() TokenInfo {
	return s.cache.Info(s.apiKey)
}
