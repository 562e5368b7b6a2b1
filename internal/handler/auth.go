package handler

import (
	"net/http"

	"github.com/fitsync/platform/internal/auth"
	"github.com/fitsync/platform/internal/service"
)

// AuthHandler handles registration, login and logout endpoints.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	user, err := h.authSvc.Register(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login. The device fingerprint is derived from the
// request headers, not trusted from the body alone.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}
	input.UserAgent = r.UserAgent()
	input.AcceptLanguage = r.Header.Get("Accept-Language")
	input.SourceAddress = ClientIP(r)

	result, err := h.authSvc.Login(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Logout handles POST /auth/logout, terminating the caller's own session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	sessionID := auth.SessionFromContext(r.Context())

	if err := h.authSvc.Logout(r.Context(), sessionID, userID); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
