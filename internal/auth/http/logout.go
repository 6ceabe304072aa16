package http

import (
	"net/http"

	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/pkg/httpx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// LogoutHandler implements POST /v1/auth/logout. Idempotent: logging
// out without a session, or twice, still succeeds and clears the
// cookie.
type LogoutHandler struct {
	Tokens *service.TokenService
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if refresh := refreshCookieValue(r); refresh != "" {
		if err := h.Tokens.RevokeByToken(ctx, refresh); err != nil {
			slogx.FromContext(ctx).Error("logout revocation failed", "err", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
			return
		}
	}

	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
