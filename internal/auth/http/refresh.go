package http

import (
	"errors"
	"net/http"

	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/pkg/httpx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// RefreshHandler implements POST /v1/auth/refresh. The refresh token
// is read exclusively from the HttpOnly cookie; anything in the body or
// headers is ignored, and the rotated token goes back out the same way.
type RefreshHandler struct {
	Tokens *service.TokenService
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := refreshCookieValue(r)
	if refresh == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "log in again")
		return
	}

	pair, err := h.Tokens.Exchange(ctx, refresh)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			clearRefreshCookie(w)
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "log in again")
			return
		}
		// Store fault. Do NOT clear the cookie: the token may be
		// perfectly valid once the store recovers.
		log.Error("refresh exchange failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
		return
	}

	if pair.RefreshToken != "" {
		setRefreshCookie(w, pair.RefreshToken, pair.RefreshTTL)
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}
