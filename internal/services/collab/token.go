package collab

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a collab token fails validation.
var ErrInvalidToken = errors.New("invalid collab token")

// TokenClaims identifies a collab session: one user on one letter.
type TokenClaims struct {
	UserID   string
	FirmID   string
	LetterID string
}

// TokenIssuer mints and validates the short-lived tokens that gate the
// editing channel. They are separate from API tokens so a leaked socket
// URL cannot be replayed against the REST API.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Mint creates a collab token for the given user and letter.
func (i *TokenIssuer) Mint(userID, firmID, letterID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    userID,
		"firm":   firmID,
		"letter": letterID,
		"scope":  "collab",
		"iat":    now.Unix(),
		"exp":    now.Add(i.ttl).Unix(),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign collab token: %w", err)
	}
	return signed, nil
}

// Validate parses a collab token and returns its claims.
func (i *TokenIssuer) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if scope, _ := claims["scope"].(string); scope != "collab" {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	firmID, _ := claims["firm"].(string)
	letterID, _ := claims["letter"].(string)
	if userID == "" || letterID == "" {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		UserID:   userID,
		FirmID:   firmID,
		LetterID: letterID,
	}, nil
}
