package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"wbtrack-rest-api/internal/cache"
	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/pkg/uid"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenKeyPrefix is the store key prefix for live token records.
	TokenKeyPrefix = "wbtrack:token:"

	// BlacklistKeyPrefix is the store key prefix for revocation records.
	BlacklistKeyPrefix = "wbtrack:blacklist:"

	// DefaultRevocationTTL bounds how long a logout is remembered.
	DefaultRevocationTTL = 1 * time.Hour

	blacklistMarker = "revoked"
)

// TokenConfig holds token signing settings.
type TokenConfig struct {
	Secret        []byte
	Algorithm     string // HS256, HS384 or HS512
	Lifetime      time.Duration
	RevocationTTL time.Duration
}

// TokenService issues signed access tokens and tracks their server-side state.
//
// A token is usable only while its signature and expiry verify, the live
// record for its subject holds exactly that token, and the subject is not
// blacklisted. Only one live token exists per subject.
type TokenService struct {
	store  cache.Cache
	method jwt.SigningMethod
	cfg    TokenConfig
	now    func() time.Time
}

// NewTokenService creates a new token service.
func NewTokenService(store cache.Cache, cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if cfg.Lifetime <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = jwt.SigningMethodHS256.Alg()
	}
	if cfg.RevocationTTL <= 0 {
		cfg.RevocationTTL = DefaultRevocationTTL
	}

	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	return &TokenService{
		store:  store,
		method: method,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// Lifetime returns the configured token lifetime.
func (s *TokenService) Lifetime() time.Duration {
	return s.cfg.Lifetime
}

func tokenKey(userID int64) string {
	return TokenKeyPrefix + strconv.FormatInt(userID, 10)
}

func blacklistKey(userID int64) string {
	return BlacklistKeyPrefix + strconv.FormatInt(userID, 10)
}

// Issue returns the live token for userID, creating one if none exists.
// A pending revocation is cleared first. An existing live token is returned
// as is and its TTL is left untouched.
func (s *TokenService) Issue(ctx context.Context, userID int64) (string, error) {
	revoked, err := s.store.Exists(ctx, blacklistKey(userID))
	if err != nil {
		return "", fmt.Errorf("failed to check blacklist: %w", err)
	}
	if revoked {
		if err := s.store.Delete(ctx, blacklistKey(userID)); err != nil {
			return "", fmt.Errorf("failed to clear blacklist: %w", err)
		}
	}

	existing, err := s.store.Get(ctx, tokenKey(userID))
	if err == nil {
		return string(existing), nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return "", fmt.Errorf("failed to read live token: %w", err)
	}

	token, err := s.sign(userID)
	if err != nil {
		return "", err
	}

	stored, err := s.store.SetNX(ctx, tokenKey(userID), []byte(token), s.cfg.Lifetime)
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	if !stored {
		// a concurrent Issue won the race; its token is the live one
		existing, err := s.store.Get(ctx, tokenKey(userID))
		if err != nil {
			return "", fmt.Errorf("failed to read live token: %w", err)
		}
		return string(existing), nil
	}

	log.Printf("[TokenService] Issued token for user_id=%d, expires_in=%v", userID, s.cfg.Lifetime)
	return token, nil
}

func (s *TokenService) sign(userID int64) (string, error) {
	now := s.now()
	claims := model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Lifetime)),
			ID:        uid.New(),
		},
	}

	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Validate checks a token and returns its subject.
// Every rejection wraps model.ErrInvalidToken; store failures are returned as is.
func (s *TokenService) Validate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: empty token", model.ErrInvalidToken)
	}

	claims := &model.TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	userID, err := claims.SubjectID()
	if err != nil {
		return 0, fmt.Errorf("%w: malformed subject", model.ErrInvalidToken)
	}

	live, err := s.store.Get(ctx, tokenKey(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, fmt.Errorf("%w: no live token for subject", model.ErrInvalidToken)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read live token: %w", err)
	}
	if string(live) != token {
		return 0, fmt.Errorf("%w: token superseded", model.ErrInvalidToken)
	}

	revoked, err := s.IsRevoked(ctx, userID)
	if err != nil {
		return 0, err
	}
	if revoked {
		return 0, fmt.Errorf("%w: token revoked", model.ErrInvalidToken)
	}

	return userID, nil
}

// IsRevoked reports whether userID has a pending revocation.
func (s *TokenService) IsRevoked(ctx context.Context, userID int64) (bool, error) {
	revoked, err := s.store.Exists(ctx, blacklistKey(userID))
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return revoked, nil
}

// Revoke blacklists userID and drops its live token. Safe to call repeatedly.
func (s *TokenService) Revoke(ctx context.Context, userID int64) error {
	if err := s.store.Set(ctx, blacklistKey(userID), []byte(blacklistMarker), s.cfg.RevocationTTL); err != nil {
		return fmt.Errorf("failed to blacklist user: %w", err)
	}
	if err := s.store.Delete(ctx, tokenKey(userID)); err != nil {
		return fmt.Errorf("failed to delete live token: %w", err)
	}

	log.Printf("[TokenService] Revoked tokens for user_id=%d", userID)
	return nil
}
