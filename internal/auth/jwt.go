// Package auth issues and validates operator API tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims holds the JWT token payload. Subject names the operator.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

const issuer = "homeops"

var (
	// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	// ErrMissingSubject is returned when issuing a token without an operator name.
	ErrMissingSubject = errors.New("auth: subject is required")
)

// IssueToken creates a signed HS256 token for the operator subject.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("auth.IssueToken: %w", ErrMissingSubject)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}
