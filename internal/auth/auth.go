// Package auth verifies the gate password and issues the bearer tokens
// player front-ends present on subsequent requests. A token is only an
// entry ticket: actual access is still governed by the session guard,
// so an unexpired token is useless once the session has gone idle.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for bcrypt password hashing.
const BcryptCost = 12

var (
	// ErrInvalidPassword is returned when the gate password is wrong.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrInvalidToken is returned when a bearer token is invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims represents the claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service handles password verification and token issuance.
type Service struct {
	passwordHash    []byte
	tokenSecret     []byte
	tokenExpiration time.Duration
}

// NewService creates an auth service. tokenExpiration should match the
// absolute session lifetime so tokens cannot outlive the session they
// belong to.
func NewService(passwordHash, tokenSecret string, tokenExpiration time.Duration) *Service {
	return &Service{
		passwordHash:    []byte(passwordHash),
		tokenSecret:     []byte(tokenSecret),
		tokenExpiration: tokenExpiration,
	}
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Unlock verifies the gate password and returns a signed access token.
func (s *Service) Unlock(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidPassword
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.tokenSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a bearer token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.tokenSecret, nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
