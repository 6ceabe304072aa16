// Package http wires the auth service's handlers, middleware chains,
// and rate limits into an http.Handler.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/pkg/httpx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// Router assembles the HTTP surface. All fields are required.
type Router struct {
	Logger  *slog.Logger
	Version string

	Store    store.Store
	Users    *service.UserService
	Tokens   *service.TokenService
	Verifier httpx.Authenticator
}

// Handler builds the mux with per-endpoint middleware chains.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	start := time.Now()

	authn := httpx.AuthnMiddleware(rt.Verifier, RefreshCookieName)

	login := &LoginHandler{Users: rt.Users, Tokens: rt.Tokens}
	refresh := &RefreshHandler{Tokens: rt.Tokens}
	logout := &LogoutHandler{Tokens: rt.Tokens}
	sessions := &SessionsHandler{Tokens: rt.Tokens}
	userinfo := &UserInfoHandler{Users: rt.Users}

	mux.Handle("POST /v1/auth/login", httpx.Chain(login,
		httpx.RateLimitByIP(httpx.StrictLimit),
	))
	mux.Handle("POST /v1/auth/refresh", httpx.Chain(refresh,
		httpx.RateLimitByIPAndCookie(httpx.StrictLimit, RefreshCookieName),
	))
	mux.Handle("POST /v1/auth/logout", httpx.Chain(logout,
		httpx.RateLimitByIP(httpx.ModerateLimit),
	))

	mux.Handle("GET /v1/auth/sessions", httpx.Chain(http.HandlerFunc(sessions.HandleList),
		authn,
		httpx.RateLimitByUser(httpx.LenientLimit),
	))
	mux.Handle("DELETE /v1/auth/sessions", httpx.Chain(http.HandlerFunc(sessions.HandleRevokeAll),
		authn,
		httpx.RateLimitByUser(httpx.ModerateLimit),
	))
	mux.Handle("DELETE /v1/auth/sessions/{id}", httpx.Chain(http.HandlerFunc(sessions.HandleRevoke),
		authn,
		httpx.RateLimitByUser(httpx.ModerateLimit),
	))

	mux.Handle("GET /v1/userinfo", httpx.Chain(userinfo,
		authn,
		httpx.RateLimitByUser(httpx.LenientLimit),
	))

	mux.Handle("GET /livez", &LivezHandler{Version: rt.Version, StartTime: start})
	mux.Handle("GET /readyz", &ReadyzHandler{Version: rt.Version, StartTime: start, Store: rt.Store})

	return httpx.Chain(mux, slogx.HTTPMiddleware(rt.Logger))
}
