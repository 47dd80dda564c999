// Package auth issues and verifies access and refresh tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/blacklist"
	"github.com/farellandr/cashback/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrInvalidToken is the only failure VerifyAccess and Refresh report.
var ErrInvalidToken = apperr.New(apperr.KindUnauthorized, "invalid token")

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int, error)
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Service struct {
	cfg       Config
	users     UserStore
	blacklist blacklist.Store
	log       *zap.Logger
	now       func() time.Time
}

func NewService(cfg Config, users UserStore, bl blacklist.Store, log *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		users:     users,
		blacklist: bl,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Service) Issue(user *models.User) (*TokenPair, error) {
	access, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}

	tokenID, err := randomID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		UserID:       user.ID,
		TokenVersion: user.TokenVersion,
		TokenID:      tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
		},
	})
	signed, err := refresh.SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return nil, errors.Wrap(err, "sign refresh token")
	}
	return &TokenPair{AccessToken: access, RefreshToken: signed}, nil
}

func (s *Service) issueAccess(user *models.User) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		UserID:       user.ID,
		Role:         string(user.Role),
		Email:        user.Email,
		Verified:     user.Verified,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return "", errors.Wrap(err, "sign access token")
	}
	return signed, nil
}

func (s *Service) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
}

// VerifyAccess checks signature, expiry, the blacklist and the user's
// current token version.
func (s *Service) VerifyAccess(ctx context.Context, tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := s.parser().ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.AccessSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	revoked, err := s.blacklist.Contains(ctx, tokenString)
	if err != nil {
		s.log.Error("blacklist lookup failed", zap.Error(err))
		return nil, ErrInvalidToken
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Error("token user lookup failed", zap.Error(err))
		}
		return nil, ErrInvalidToken
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type RefreshResult struct {
	AccessToken string       `json:"accessToken"`
	User        *models.User `json:"user"`
}

// Refresh mints a new access token. The refresh token is not rotated and
// stays valid until it expires or the user's token version moves.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims := &RefreshClaims{}
	_, err := s.parser().ParseWithClaims(refreshToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.RefreshSecret), nil
	})
	if err != nil || claims.TokenID == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Error("refresh user lookup failed", zap.Error(err))
		}
		return nil, ErrInvalidToken
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, ErrInvalidToken
	}

	access, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access, User: user}, nil
}

// Logout blacklists the token until its own expiry. Tokens that cannot be
// decoded or are already expired are ignored.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.blacklist.Add(ctx, tokenString, ttl)
}

// RevokeAll invalidates every token issued to the user so far.
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	version, err := s.users.IncrementTokenVersion(ctx, userID)
	if err != nil {
		return err
	}
	s.log.Info("revoked user tokens", zap.String("user_id", userID.String()), zap.Int("token_version", version))
	return nil
}

func randomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "token id")
	}
	return hex.EncodeToString(b), nil
}
