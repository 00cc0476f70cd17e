package channel

import (
	"context"
	"errors"
)

// TokenProvider yields the access token attached to each connect attempt.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

// AccessToken implements TokenProvider.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("no access token configured")
	}
	return string(t), nil
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// AccessToken implements TokenProvider.
func (f TokenFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}
