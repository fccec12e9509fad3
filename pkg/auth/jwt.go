package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)

const ScopeEditor = "editor"

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens for a single secret.
type Signer struct {
	secret []byte
	expire time.Duration
}

func NewSigner(secret string, expireHours int) *Signer {
	return &Signer{secret: []byte(secret), expire: time.Duration(expireHours) * time.Hour}
}

// GenerateToken issues an editor token for subject, typically a device or
// organiser name.
func (s *Signer) GenerateToken(subject string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		Scope: ScopeEditor,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) ParseToken(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Scope != ScopeEditor {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
