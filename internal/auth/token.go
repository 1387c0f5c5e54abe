// Package auth signs in administrators and resolves request actors.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/bilgisen/altavoz/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, expiry or issuer checks.
	ErrInvalidToken = errors.New("invalid token")
	errNoSecret     = errors.New("JWT secret not configured")
)

// TokenConfig holds JWT generation configuration.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// actorClaims carries the actor in the token.
type actorClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 actor tokens.
type Tokens struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokens(cfg TokenConfig) *Tokens {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Tokens{cfg: cfg, now: time.Now}
}

// Issue signs a token for the actor. It returns the token and its expiry.
func (t *Tokens) Issue(actor models.Actor) (string, time.Time, error) {
	if t.cfg.Secret == "" {
		return "", time.Time{}, errNoSecret
	}

	now := t.now()
	expires := now.Add(t.cfg.TTL)
	claims := actorClaims{
		Email: actor.Email,
		Role:  string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token and returns the actor it was issued for.
func (t *Tokens) Verify(token string) (models.Actor, error) {
	if t.cfg.Secret == "" {
		return models.Anonymous, errNoSecret
	}

	parsed, err := jwt.ParseWithClaims(token, &actorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(t.cfg.Secret), nil
	},
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return models.Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*actorClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return models.Anonymous, ErrInvalidToken
	}

	return models.Actor{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  models.ParseRole(claims.Role),
	}, nil
}
