package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/auth"
	"github.com/phrazzld/stockroom/internal/platform/logger"
)

// TokenIssuer signs user and guest tokens.
type TokenIssuer interface {
	IssueUserToken(ctx context.Context, username string) (string, time.Time, error)
	IssueGuestToken(ctx context.Context) (string, time.Time, error)
}

// Authenticator checks operator credentials.
type Authenticator interface {
	Authenticate(username, password string) error
}

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	tokens    TokenIssuer
	accounts  Authenticator
	validator *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(tokens TokenIssuer, accounts Authenticator) *AuthHandler {
	return &AuthHandler{
		tokens:    tokens,
		accounts:  accounts,
		validator: validator.New(),
	}
}

// Login handles the /auth/login endpoint.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if err := h.accounts.Authenticate(req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to authenticate user", err)
		return
	}

	token, expiresAt, err := h.tokens.IssueUserToken(r.Context(), req.Username)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to generate authentication token", err)
		return
	}

	logger.FromContextOrDefault(r.Context()).Info("operator logged in", "username", req.Username)
	shared.RespondWithJSON(w, r, http.StatusOK, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Role:      auth.RoleUser,
	})
}

// GuestLogin handles the /auth/guest-login endpoint. Guests need no
// credentials; their requests are rate limited by source address.
func (h *AuthHandler) GuestLogin(w http.ResponseWriter, r *http.Request) {
	token, expiresAt, err := h.tokens.IssueGuestToken(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to generate authentication token", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Role:      auth.RoleGuest,
	})
}
