package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "transferai/pkg/domain-errors"
)

const devIssuer = "transferai-dev"

// DevClaims are the claims of a development token.
type DevClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// DevJWT issues and verifies HS256 tokens signed with a shared secret.
type DevJWT struct {
	secret []byte
	now    func() time.Time
}

func NewDevJWT(secret string) (*DevJWT, error) {
	if secret == "" {
		return nil, fmt.Errorf("dev jwt secret is required")
	}
	return &DevJWT{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for subject valid for ttl.
func (d *DevJWT) Issue(subject, email, name string, ttl time.Duration) (string, error) {
	now := d.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, DevClaims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    devIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(d.secret)
}

func (d *DevJWT) Verify(_ context.Context, token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &DevClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return d.secret, nil
	},
		jwt.WithIssuer(devIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, invalidToken(err)
	}
	claims, ok := parsed.Claims.(*DevClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, invalidToken(fmt.Errorf("invalid token claims"))
	}
	return &Identity{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
