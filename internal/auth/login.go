package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/storage"
)

var (
	// ErrNotAdmin is returned when the email is not an administrator of the directory.
	ErrNotAdmin = errors.New("access denied")
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = storage.ErrInvalidCredentials
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Actor     models.Actor `json:"actor"`
}

// Service signs administrators in and resolves request credentials.
type Service struct {
	users       storage.UserDirectory
	tokens      *Tokens
	adminAPIKey string
}

func NewService(users storage.UserDirectory, tokens *Tokens, adminAPIKey string) *Service {
	return &Service{users: users, tokens: tokens, adminAPIKey: adminAPIKey}
}

// Login checks that the email belongs to an administrator, verifies the
// password and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.FindAdminByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotAdmin
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.users.VerifyPassword(ctx, email, password); err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	actor := user.Actor()
	token, expires, err := s.tokens.Issue(actor)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, Actor: actor}, nil
}

// Authenticate resolves a bearer token.
func (s *Service) Authenticate(token string) (models.Actor, error) {
	return s.tokens.Verify(token)
}

// AuthenticateAPIKey resolves the static automation key to an admin actor.
func (s *Service) AuthenticateAPIKey(key string) (models.Actor, bool) {
	if s.adminAPIKey == "" || key == "" {
		return models.Anonymous, false
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		return models.Anonymous, false
	}
	return models.Actor{ID: "api-key", Role: models.RoleAdmin}, true
}
