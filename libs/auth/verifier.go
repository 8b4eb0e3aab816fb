package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier accepts RS256 tokens signed by a JWKS key and HS256 tokens signed
// with Secret. Either may be unset.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
}

func (v Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	switch unverified.Method.Alg() {
	case jwt.SigningMethodRS256.Alg():
		if v.JWKS == nil {
			return nil, ErrInvalidToken
		}
		return VerifyRS256WithKeys(token, v.JWKS.KeyFunc(ctx))
	case jwt.SigningMethodHS256.Alg():
		if v.Secret == "" {
			return nil, ErrInvalidToken
		}
		return ParseAndVerifyHS256(token, v.Secret)
	default:
		return nil, ErrInvalidToken
	}
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("missing or invalid Authorization header")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("missing or invalid Authorization header")
	}
	return token, nil
}

type claimsKey struct{}

func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}
