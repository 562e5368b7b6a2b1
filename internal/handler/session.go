package handler

import (
	"net/http"

	"github.com/fitsync/platform/internal/auth"
	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/session"
)

// SessionHandler exposes a user's own session management endpoints.
type SessionHandler struct {
	sessions *session.Engine
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Engine) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// GetStats handles GET /sessions/me.
func (h *SessionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())

	stats, err := h.sessions.GetUserSessionStats(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, stats)
}

// ListSessions handles GET /sessions. Session tokens are never serialized.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	current := auth.SessionFromContext(r.Context())

	active, err := h.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	type sessionView struct {
		*domain.Session
		DeviceKey string `json:"device_key"`
		Current   bool   `json:"current"`
	}
	views := make([]sessionView, 0, len(active))
	for i := range active {
		views = append(views, sessionView{
			Session:   &active[i],
			DeviceKey: active[i].Fingerprint.DeviceKey(),
			Current:   active[i].ID == current,
		})
	}

	RespondJSON(w, http.StatusOK, views)
}

// TerminateAll handles DELETE /sessions, ending every session including the
// caller's own.
func (h *SessionHandler) TerminateAll(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())

	n, err := h.sessions.TerminateAllSessions(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]int{"terminated": n})
}

// TerminateDevice handles DELETE /sessions/devices?key=<deviceKey>. Device
// keys carry user-agent text, so they travel as a query parameter rather
// than a path segment.
func (h *SessionHandler) TerminateDevice(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	deviceKey := r.URL.Query().Get("key")
	if deviceKey == "" {
		RespondError(w, domain.ErrValidation("missing device key"))
		return
	}

	n, err := h.sessions.TerminateDeviceSessions(r.Context(), userID, deviceKey)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]int{"terminated": n})
}
