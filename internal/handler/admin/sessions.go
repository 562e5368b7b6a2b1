package admin

import (
	"net/http"

	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/handler"
	"github.com/fitsync/platform/internal/repository"
	"github.com/fitsync/platform/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionAdminHandler handles admin session oversight for any account.
type SessionAdminHandler struct {
	pool     *pgxpool.Pool
	users    repository.AuthUserRepository
	sessions *session.Engine
}

// NewSessionAdminHandler creates a new SessionAdminHandler.
func NewSessionAdminHandler(pool *pgxpool.Pool, users repository.AuthUserRepository, sessions *session.Engine) *SessionAdminHandler {
	return &SessionAdminHandler{pool: pool, users: users, sessions: sessions}
}

// SearchUsers handles GET /admin/users?q=email.
func (h *SessionAdminHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	rows, err := h.pool.Query(r.Context(), `
		SELECT u.id, u.email, u.role, u.created_at,
		       count(s.id) FILTER (WHERE s.expires_at > now()) AS active_sessions
		FROM auth_users u
		LEFT JOIN sessions s ON s.user_id = u.id
		WHERE ($1 = '' OR u.email ILIKE '%' || $1 || '%')
		GROUP BY u.id, u.email, u.role, u.created_at
		ORDER BY u.created_at DESC LIMIT 50`, query)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("search users", err))
		return
	}
	defer rows.Close()

	type userSummary struct {
		UserID         uuid.UUID `json:"user_id"`
		Email          string    `json:"email"`
		Role           string    `json:"role"`
		CreatedAt      string    `json:"created_at"`
		ActiveSessions int       `json:"active_sessions"`
	}

	var results []userSummary
	for rows.Next() {
		var us userSummary
		if err := rows.Scan(&us.UserID, &us.Email, &us.Role, &us.CreatedAt, &us.ActiveSessions); err != nil {
			handler.RespondError(w, domain.ErrInternal("scan user", err))
			return
		}
		results = append(results, us)
	}

	handler.RespondJSON(w, http.StatusOK, results)
}

// ListUserSessions handles GET /admin/users/{id}/sessions.
func (h *SessionAdminHandler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid user id"))
		return
	}

	user, err := h.users.FindByID(r.Context(), h.pool, userID)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("find user", err))
		return
	}
	if user == nil {
		handler.RespondError(w, domain.ErrNotFound("user", userID.String()))
		return
	}

	active, err := h.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"email":    user.Email,
		"role":     user.Role,
		"sessions": active,
	})
}

// TerminateUserSessions handles DELETE /admin/users/{id}/sessions, forcing the
// account off every device.
func (h *SessionAdminHandler) TerminateUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid user id"))
		return
	}

	n, err := h.sessions.TerminateAllSessions(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]int{"terminated": n})
}
