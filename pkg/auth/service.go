package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/models"
	"github.com/termgate/termgate/pkg/store"
)

// Service implements registration, login, and token verification.
type Service struct {
	store *store.GORMStore
	jwt   *JWTService
}

// NewService wires the auth service to the store and JWT signer.
func NewService(s *store.GORMStore, jwt *JWTService) *Service {
	return &Service{store: s, jwt: jwt}
}

// AuthResult is returned by Register and Login: the user plus a fresh token.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token *IssuedToken `json:"token"`
}

// Register creates a new account. The password must satisfy the strength
// policy and the email must not already be registered.
func (s *Service) Register(ctx context.Context, email, name, password string) (*AuthResult, error) {
	email = models.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if _, err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.jwt.Generate(user)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "user registered", logger.KeyUserID, user.ID, logger.KeyEmail, user.Email)
	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and issues a fresh token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			// Burn a comparison so both failure paths cost the same.
			VerifyPassword("$2a$12$invalidsaltinvalidsaltinvalid", password)
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.WarnCtx(ctx, "failed to record last login", logger.KeyUserID, user.ID, logger.KeyError, err)
	}

	token, err := s.jwt.Generate(user)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "user logged in", logger.KeyUserID, user.ID)
	return &AuthResult{User: user, Token: token}, nil
}

// Verify validates a bearer token and loads the user it names. A token for a
// deleted user is rejected even if the signature is still valid.
func (s *Service) Verify(ctx context.Context, token string) (*models.User, *Claims, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	return user, claims, nil
}
