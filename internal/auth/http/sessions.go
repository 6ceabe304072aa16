package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/pkg/httpx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// SessionsHandler serves the device-management endpoints: list the
// caller's active sessions, revoke one, or revoke all.
type SessionsHandler struct {
	Tokens *service.TokenService
}

type sessionResponse struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current"`
}

func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	currentID := httpx.SessionIDFromCtx(ctx)

	sessions, err := h.Tokens.ListSessions(ctx, userID)
	if err != nil {
		slogx.FromContext(ctx).Error("session listing failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:             s.ID,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
			Current:        s.ID == currentID,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	sessionID := r.PathValue("id")

	if err := h.Tokens.RevokeSessionForUser(ctx, userID, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "no such session")
			return
		}
		slogx.FromContext(ctx).Error("session revocation failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) HandleRevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)

	if err := h.Tokens.RevokeAllForUser(ctx, userID); err != nil {
		slogx.FromContext(ctx).Error("bulk revocation failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
		return
	}

	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
