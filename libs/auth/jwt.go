package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// Claims carries the portal identity: Subject is the patient or doctor id
// matching Role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func NewClaims(subject, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return parse(token, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.SigningMethodHS256.Alg())
}

func VerifyRS256(token string, pubKey *rsa.PublicKey) (*Claims, error) {
	return parse(token, func(t *jwt.Token) (any, error) {
		return pubKey, nil
	}, jwt.SigningMethodRS256.Alg())
}

// KeyFunc resolves the RSA key for a token's kid.
type KeyFunc func(kid string) (*rsa.PublicKey, error)

// VerifyRS256WithKeys verifies a token against the key named by its kid header.
func VerifyRS256WithKeys(token string, keys KeyFunc) (*Claims, error) {
	return parse(token, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return keys(kid)
	}, jwt.SigningMethodRS256.Alg())
}

func parse(token string, key jwt.Keyfunc, alg string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, key,
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
