package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/internal/repository"
)

// MinPasswordLength is the shortest password accepted at registration and change.
const MinPasswordLength = 8

// TokenTypeBearer is the token_type reported to clients.
const TokenTypeBearer = "bearer"

// PasswordHasher derives and checks password digests.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// AuthService handles registration, login and account operations.
type AuthService struct {
	users  repository.UserRepository
	tokens *TokenService
	hasher PasswordHasher
}

// NewAuthService creates a new auth service.
func NewAuthService(users repository.UserRepository, tokens *TokenService, hasher PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
	}
}

// Register creates an account. Returns model.ErrUserExists when the username is taken.
func (s *AuthService) Register(ctx context.Context, in model.NewUser) (*model.User, error) {
	if err := checkPassword("password", in.Password); err != nil {
		return nil, err
	}

	_, err := s.users.GetByUsername(ctx, in.Username)
	if err == nil {
		return nil, model.ErrUserExists
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	return s.users.Create(ctx, &model.User{
		ID:            in.ID,
		Username:      in.Username,
		PasswordHash:  digest,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Language:      in.Language,
		IsBot:         in.IsBot,
		PremiumStatus: in.PremiumStatus,
	})
}

// LoginByUsername checks credentials and returns the subject's live token.
func (s *AuthService) LoginByUsername(ctx context.Context, username, password string) (*model.TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, username)
	return s.login(ctx, user, err, password)
}

// LoginByUserID checks credentials and returns the subject's live token.
func (s *AuthService) LoginByUserID(ctx context.Context, userID int64, password string) (*model.TokenPair, error) {
	user, err := s.users.GetByID(ctx, userID)
	return s.login(ctx, user, err, password)
}

func (s *AuthService) login(ctx context.Context, user *model.User, lookupErr error, password string) (*model.TokenPair, error) {
	if errors.Is(lookupErr, model.ErrNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if lookupErr != nil {
		return nil, lookupErr
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		log.Printf("[AuthService] Invalid password for user_id=%d", user.ID)
		return nil, model.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	log.Printf("[AuthService] Successful login for user_id=%d", user.ID)
	return &model.TokenPair{AccessToken: token, TokenType: TokenTypeBearer}, nil
}

// ChangePassword replaces the password of an authenticated user.
// The current token stays valid.
func (s *AuthService) ChangePassword(ctx context.Context, user *model.User, oldPassword, newPassword string) error {
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return model.ErrInvalidOldPassword
	}

	revoked, err := s.tokens.IsRevoked(ctx, user.ID)
	if err != nil {
		return err
	}
	if revoked {
		return model.ErrAccountBlocked
	}

	if err := checkPassword("new_password", newPassword); err != nil {
		return err
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, digest); err != nil {
		return err
	}

	user.PasswordHash = digest
	log.Printf("[AuthService] Password changed for user_id=%d", user.ID)
	return nil
}

// Logout revokes the user's token.
func (s *AuthService) Logout(ctx context.Context, user *model.User) error {
	return s.tokens.Revoke(ctx, user.ID)
}

// UserInfo returns the stored profile of userID.
func (s *AuthService) UserInfo(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func checkPassword(field, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.NewValidationError(field, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	return nil
}
