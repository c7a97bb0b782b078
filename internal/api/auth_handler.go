package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/api/shared"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
	"github.com/phrazzld/codescope-api/internal/service/auth"
	"github.com/phrazzld/codescope-api/internal/store"
)

// AuthHandler serves account registration and login. Both endpoints answer
// with a bearer token for the task and report routes.
type AuthHandler struct {
	users    store.UserStore
	tokens   auth.JWTService
	verifier auth.PasswordVerifier
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	users store.UserStore,
	tokens auth.JWTService,
	verifier auth.PasswordVerifier,
) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, verifier: verifier}
}

// bindCredentials decodes, normalizes and validates a credentials payload.
// It reports false once an error response has been written.
func bindCredentials[T any](w http.ResponseWriter, r *http.Request, req *T, email *string) bool {
	if err := shared.DecodeJSON(w, r, req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	*email = strings.ToLower(strings.TrimSpace(*email))
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, r *http.Request, status int, userID uuid.UUID) {
	token, err := h.tokens.GenerateToken(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}
	shared.RespondWithJSON(w, r, status, AuthResponse{UserID: userID, AccessToken: token})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !bindCredentials(w, r, &req, &req.Email) {
		return
	}

	user, err := domain.NewUser(req.Email, req.Password)
	if err == nil {
		err = h.users.Create(r.Context(), user)
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create user")
		return
	}

	logger.FromContext(r.Context()).Info("account registered", "user_id", user.ID)
	h.issueToken(w, r, http.StatusCreated, user.ID)
}

// Login handles POST /api/auth/login. An unknown email and a wrong password
// produce the same response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !bindCredentials(w, r, &req, &req.Email) {
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		HandleAPIError(w, r, auth.ErrInvalidCredentials, "")
		return
	case err != nil:
		HandleAPIError(w, r, err, "Failed to authenticate user")
		return
	}

	if err := h.verifier.Compare(user.HashedPassword, req.Password); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			logger.FromContext(r.Context()).Error("stored password hash unusable", "user_id", user.ID, "error", err)
		}
		HandleAPIError(w, r, auth.ErrInvalidCredentials, "")
		return
	}

	h.issueToken(w, r, http.StatusOK, user.ID)
}
