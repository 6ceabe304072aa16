package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// Identity is the authenticated principal attached to the request
// context by AuthnMiddleware.
type Identity struct {
	UserID string

	// SessionID is set only when authentication went through the legacy
	// session-store path; stateless JWT auth carries no session handle.
	SessionID string

	// Method records which path authenticated the request: "jwt" or
	// "session".
	Method string
}

// ErrUnauthenticated is the only authentication failure an Authenticator
// may surface to callers. Any other error is treated as an
// infrastructure fault and answered with 503, so clients never discard
// valid credentials because the store blinked.
var ErrUnauthenticated = errors.New("httpx: unauthenticated")

// Authenticator decides whether a request's credentials identify a user.
// bearer is the raw Authorization bearer token ("" when absent);
// sessionCookie is the legacy session cookie value ("" when absent).
type Authenticator interface {
	Authenticate(ctx context.Context, bearer, sessionCookie string) (Identity, error)
}

// AuthnMiddleware gates protected endpoints. Credential extraction only;
// all verification policy lives behind the Authenticator.
func AuthnMiddleware(a Authenticator, sessionCookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			id, err := a.Authenticate(ctx, BearerToken(r), cookieValue(r, sessionCookieName))
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					log.Warn("authn failed", "err", err)
					writeBearerError(w, "invalid or missing credentials")
					return
				}
				log.Error("authn infrastructure failure", "err", err)
				WriteError(w, http.StatusServiceUnavailable, "service_unavailable",
					"authentication backend temporarily unavailable")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, id.UserID)
			ctx = context.WithValue(ctx, CtxKeySessionID, id.SessionID)
			ctx = context.WithValue(ctx, CtxKeyAuthMethod, id.Method)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the Authorization bearer token, or "".
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// RFC 6750-style error response for bearer auth failures.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	NoCache(w)
	w.WriteHeader(http.StatusUnauthorized)
}
