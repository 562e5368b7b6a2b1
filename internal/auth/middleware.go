package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fitsync/platform/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

const (
	claimsKey  contextKey = "auth_claims"
	subjectKey contextKey = "auth_subject"
	sessionKey contextKey = "auth_session"
)

// SessionValidator detects sessions that were superseded or terminated since
// the token was issued.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, userID uuid.UUID) (domain.SessionValidation, error)
}

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// SubjectFromContext extracts the authenticated user ID from request context.
func SubjectFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(subjectKey).(uuid.UUID)
	return id
}

// SessionFromContext extracts the session ID bound to the request's token.
func SessionFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(sessionKey).(uuid.UUID)
	return id
}

// Authenticate returns middleware that validates the bearer token and then
// checks the bound session against live state. A session superseded by a
// newer login ("logged in elsewhere") fails here with SESSION_INVALID even
// though the token itself is still cryptographically valid.
func Authenticate(jwtMgr *JWTManager, sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr)
			if err != nil {
				respondError(w, domain.ErrUnauthorized(err.Error()))
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				respondError(w, domain.ErrUnauthorized("invalid subject"))
				return
			}
			sessionID, err := uuid.Parse(claims.SessionID)
			if err != nil {
				respondError(w, domain.ErrUnauthorized("invalid session binding"))
				return
			}

			check, err := sessions.ValidateSession(r.Context(), sessionID, userID)
			if err != nil {
				respondError(w, domain.ErrInternal("session check failed", err))
				return
			}
			if !check.Valid {
				respondError(w, domain.ErrSessionInvalid(check.Reason))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, subjectKey, userID)
			ctx = context.WithValue(ctx, sessionKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that checks the authenticated role.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				respondError(w, domain.ErrUnauthorized("no auth context"))
				return
			}
			if !roleSet[claims.Role] {
				respondError(w, domain.ErrForbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// respondError writes an AppError as JSON. The handler package's responder
// would be circular to import from here, so the encoding is local.
func respondError(w http.ResponseWriter, appErr *domain.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateToken(parts[1])
}
