package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/pkg/httpx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// LoginHandler implements POST /v1/auth/login.
type LoginHandler struct {
	Users  *service.UserService
	Tokens *service.TokenService
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	user, err := h.Users.VerifyCredentials(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			log.Warn("login rejected", "username", req.Username)
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "username or password is incorrect")
			return
		}
		log.Error("login failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
		return
	}

	pair, err := h.Tokens.IssueOnLogin(ctx, user.ID, httpx.IPKeyExtractor(r), r.UserAgent())
	if err != nil {
		log.Error("token issuance failed", "err", err, "user_id", user.ID)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
		return
	}

	setRefreshCookie(w, pair.RefreshToken, pair.RefreshTTL)
	httpx.WriteJSON(w, http.StatusOK, pair)
}
