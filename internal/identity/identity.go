// Package identity verifies bearer tokens and turns them into accounts.
//
// Google ID tokens are the production path. HS256 tokens signed with a shared
// secret exist for local development and tests; the server only accepts them
// when DEV_JWT_SECRET is set.
package identity

import (
	"context"
	"errors"

	dErrors "transferai/pkg/domain-errors"
)

// Identity is a verified caller.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Verifier checks a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// ErrNoVerifier is returned by an empty Chain.
var ErrNoVerifier = errors.New("no token verifier configured")

// Chain tries each verifier in order and accepts the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (*Identity, error) {
	if len(c) == 0 {
		return nil, ErrNoVerifier
	}
	var lastErr error
	for _, v := range c {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func invalidToken(err error) error {
	return dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
}
