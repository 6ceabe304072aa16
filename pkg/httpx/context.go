package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID     ctxKey = "user_id"
	CtxKeySessionID  ctxKey = "session_id"
	CtxKeyAuthMethod ctxKey = "auth_method"
)

// UserIDFromCtx returns the authenticated user id, or "" when the
// request did not pass the authn middleware.
func UserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromCtx returns the session id behind the request's
// credentials. Empty for stateless JWT authentication, which carries no
// session reference.
func SessionIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySessionID).(string); ok {
		return v
	}
	return ""
}
