package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"denote/internal/auth"
	apperr "denote/internal/errors"
	"denote/internal/logging"
	"denote/internal/model"
	"denote/internal/repository"
)

const (
	bcryptCost = 10
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
	maxUsernameLen   = 64
)

// dummyHash is compared against when the username is unknown so that both
// login failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("denote-dummy-password"), bcryptCost)

// Token is a signed session token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// AuthService handles authentication operations.
type AuthService interface {
	// Register creates the user and immediately issues a token for it.
	Register(ctx context.Context, username, password string) (*model.User, *Token, error)
	Login(ctx context.Context, username, password string) (*Token, *model.User, error)
	Validate(token string) (*auth.Identity, error)
	GetProfile(ctx context.Context, identity auth.Identity) (*model.User, error)
}

type authService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtService: jwtService,
	}
}

// Register creates a new user with a hashed password.
func (s *authService) Register(ctx context.Context, username, password string) (*model.User, *Token, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, nil, err
	}

	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, nil, apperr.ErrUserExists
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("check user existence: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: string(hashedPassword),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// lost a race against a concurrent registration
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, apperr.ErrUserExists
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}

	logging.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, token, nil
}

// Login checks the credentials and returns a signed token.
func (s *authService) Login(ctx context.Context, username, password string) (*Token, *model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, nil, apperr.Validation("username and password are required")
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("find user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil, apperr.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apperr.ErrInvalidCredentials
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	return token, user, nil
}

// Validate resolves a bearer token to the identity it was issued for.
func (s *authService) Validate(token string) (*auth.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.ErrInvalidToken
	}
	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, apperr.ErrInvalidToken.Message, err)
	}
	return &auth.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// GetProfile loads the user behind identity.
func (s *authService) GetProfile(ctx context.Context, identity auth.Identity) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *authService) issue(user *model.User) (*Token, error) {
	value, expiresAt, err := s.jwtService.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Token{Value: value, ExpiresAt: expiresAt}, nil
}

func validateCredentials(username, password string) error {
	switch {
	case username == "" && password == "":
		return apperr.Validation("username and password are required")
	case username == "":
		return apperr.Validation("username is required")
	case password == "":
		return apperr.Validation("password is required")
	case len(username) > maxUsernameLen:
		return apperr.Validation(fmt.Sprintf("username must be at most %d characters", maxUsernameLen))
	case len(password) > maxPasswordBytes:
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
