package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/auth"
	"github.com/phrazzld/stockroom/internal/ratelimit"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// KeyVerifier checks API keys.
type KeyVerifier interface {
	VerifyAPIKey(key string) bool
}

// AuthMiddleware requires an API key or a bearer token on protected routes.
type AuthMiddleware struct {
	tokens TokenValidator
	keys   KeyVerifier
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(tokens TokenValidator, keys KeyVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, keys: keys}
}

// Authenticate resolves the caller and stores a shared.Principal in the
// request context. An X-API-Key header, when present, must be valid and
// takes precedence over any bearer token. Guest tokens are owned by the
// source address, matching the rate limiter's guest identity.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-API-Key"); key != "" {
			if m.keys == nil || !m.keys.VerifyAPIKey(key) {
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid API key", nil,
					shared.WithElevatedLogLevel())
				return
			}
			// The rate limit identity keeps only a key prefix; task
			// ownership needs the whole key.
			next.ServeHTTP(w, r.WithContext(shared.SetPrincipal(r.Context(), shared.Principal{
				CallerID: "apikey:" + auth.DigestAPIKey(key),
				Method:   shared.AuthAPIKey,
			})))
			return
		}

		if r.Header.Get("Authorization") == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}
		token, ok := ratelimit.BearerToken(r)
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.tokens.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			}
			return
		}

		p := shared.Principal{Subject: claims.Subject}
		if claims.Guest() {
			p.CallerID = ratelimit.GuestIdentity(r).Key
			p.Method = shared.AuthGuest
		} else {
			p.CallerID = ratelimit.UserIdentity(claims.Subject).Key
			p.Method = shared.AuthUser
		}
		next.ServeHTTP(w, r.WithContext(shared.SetPrincipal(r.Context(), p)))
	})
}
