package http

import (
	"context"
	"net/http"

	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/pkg/httpx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// UserInfoHandler implements GET /v1/userinfo, the canonical protected
// endpoint. It answers identically regardless of which credential
// authenticated the request, apart from reporting the method.
type UserInfoHandler struct {
	Users *service.UserService
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)

	user, err := h.Users.GetUser(ctx, userID)
	if err != nil {
		slogx.FromContext(ctx).Error("userinfo lookup failed", "err", err, "user_id", userID)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "try again later")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":     user.ID,
		"username":    user.Username,
		"auth_method": authMethod(ctx),
	})
}

func authMethod(ctx context.Context) string {
	if v, ok := ctx.Value(httpx.CtxKeyAuthMethod).(string); ok {
		return v
	}
	return ""
}
