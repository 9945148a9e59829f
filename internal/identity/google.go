package identity

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

type payloadValidator interface {
	Validate(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// Google verifies Google ID tokens issued for one OAuth client.
type Google struct {
	clientID  string
	validator payloadValidator
}

// NewGoogle builds a verifier for clientID using Google's published keys.
func NewGoogle(ctx context.Context, clientID string) (*Google, error) {
	if clientID == "" {
		return nil, fmt.Errorf("google client id is required")
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("create google token validator: %w", err)
	}
	return &Google{clientID: clientID, validator: v}, nil
}

func (g *Google) Verify(ctx context.Context, token string) (*Identity, error) {
	payload, err := g.validator.Validate(ctx, token, g.clientID)
	if err != nil {
		return nil, invalidToken(err)
	}
	if payload.Subject == "" {
		return nil, invalidToken(fmt.Errorf("token has no subject"))
	}
	return &Identity{
		Subject: payload.Subject,
		Email:   claim(payload.Claims, "email"),
		Name:    claim(payload.Claims, "name"),
	}, nil
}

func claim(claims map[string]any, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}
