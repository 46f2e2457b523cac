package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/stockroom/internal/config"
	"github.com/phrazzld/stockroom/internal/platform/logger"
)

// Token roles.
const (
	RoleUser  = "user"
	RoleGuest = "guest"
)

// Claims is the validated content of a token.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Guest reports whether the token was issued by guest login.
func (c *Claims) Guest() bool {
	return c.Role != RoleUser
}

// TokenService issues and validates bearer tokens.
type TokenService struct {
	signingKey         []byte
	userTokenLifetime  time.Duration
	guestTokenLifetime time.Duration
	timeFunc           func() time.Time // Injectable for testing
	clockSkew          time.Duration    // Allowed time difference for validation to handle clock drift
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenService creates a TokenService from cfg.
func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	return &TokenService{
		signingKey:         []byte(cfg.JWTSecret),
		userTokenLifetime:  time.Duration(cfg.TokenLifetimeMinutes) * time.Minute,
		guestTokenLifetime: time.Duration(cfg.GuestTokenLifetimeMinutes) * time.Minute,
		timeFunc:           time.Now,
		clockSkew:          2 * time.Minute,
	}, nil
}

// IssueUserToken signs a token for an operator account.
func (s *TokenService) IssueUserToken(ctx context.Context, username string) (string, time.Time, error) {
	return s.issue(ctx, username, RoleUser, s.userTokenLifetime)
}

// IssueGuestToken signs a token for an anonymous caller. Each guest gets a
// fresh random subject; rate limiting still keys guests by source address.
func (s *TokenService) IssueGuestToken(ctx context.Context) (string, time.Time, error) {
	return s.issue(ctx, "guest-"+uuid.NewString(), RoleGuest, s.guestTokenLifetime)
}

func (s *TokenService) issue(ctx context.Context, subject, role string, lifetime time.Duration) (string, time.Time, error) {
	now := s.timeFunc()
	expires := now.Add(lifetime)

	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		logger.FromContextOrDefault(ctx).Error("failed to sign JWT",
			"error", err,
			"role", role,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", time.Time{}, fmt.Errorf("failed to sign token with HMAC-SHA256: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken verifies signature and time claims.
func (s *TokenService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContextOrDefault(ctx)
	now := s.timeFunc()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&tokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: token not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed", "error", err, "error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		log.Debug("token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleUser && claims.Role != RoleGuest {
		log.Debug("token validation failed: unknown role", "role", claims.Role)
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}, nil
}

// DecodeSubject adapts ValidateToken to the rate limiter's identity
// derivation. Any validation failure is reported as an error so the caller
// falls back to the guest class.
func (s *TokenService) DecodeSubject(token string) (string, bool, error) {
	claims, err := s.ValidateToken(context.Background(), token)
	if err != nil {
		return "", false, err
	}
	return claims.Subject, claims.Guest(), nil
}
