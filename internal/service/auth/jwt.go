package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
)

// issuer is the iss claim stamped on and required of every token.
const issuer = "codescope-api"

// JWTService issues and validates access tokens.
type JWTService interface {
	// GenerateToken signs an access token for userID.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken verifies tokenString and returns its claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of an access token.
type Claims struct {
	UserID    uuid.UUID
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	UserID uuid.UUID `json:"uid"`
	jwt.RegisteredClaims
}

// hmacJWTService signs tokens with HMAC-SHA256.
type hmacJWTService struct {
	signingKey []byte
	lifetime   time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// Ensure hmacJWTService implements JWTService
var _ JWTService = (*hmacJWTService)(nil)

// Option customizes a JWTService.
type Option func(*hmacJWTService)

// WithClock replaces the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(s *hmacJWTService) { s.now = now }
}

// NewJWTService creates an HS256 token service from cfg.
func NewJWTService(cfg config.AuthConfig, opts ...Option) (JWTService, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	if cfg.TokenLifetimeMinutes <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}

	s := &hmacJWTService{
		signingKey: []byte(cfg.JWTSecret),
		lifetime:   time.Duration(cfg.TokenLifetimeMinutes) * time.Minute,
		leeway:     2 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GenerateToken implements JWTService.
func (s *hmacJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	now := s.now()
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		logger.FromContext(ctx).Error("failed to sign access token",
			"error", err,
			"user_id", userID)
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken implements JWTService.
func (s *hmacJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(token *jwt.Token) (any, error) {
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		log := logger.FromContext(ctx)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token rejected: expired")
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			log.Debug("token rejected: not yet valid")
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token rejected", "error", err)
			return nil, ErrInvalidToken
		}
	}
	if !token.Valid || claims.UserID == uuid.Nil || claims.Subject != claims.UserID.String() {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:    claims.UserID,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
