package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	authhttp "github.com/taskpadhq/taskpad/internal/auth/http"
	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/internal/auth/store/drivers/sqlite"
	"github.com/taskpadhq/taskpad/pkg/jwtx"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testUsername = "alice"
	testPassword = "correct horse battery staple"
)

type testEnv struct {
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, jwtEnabled, rotation bool) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewCodec([]byte(testSecret), 30*time.Minute)
	require.NoError(t, err)

	users := &service.UserService{Store: st}
	tokens := &service.TokenService{
		Codec:           codec,
		Store:           st,
		RefreshTTL:      7 * 24 * time.Hour,
		RotationEnabled: rotation,
	}

	_, err = users.CreateUser(t.Context(), testUsername, testPassword)
	require.NoError(t, err)

	router := &authhttp.Router{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:  "test",
		Store:    st,
		Users:    users,
		Tokens:   tokens,
		Verifier: &service.HybridVerifier{Codec: codec, Store: st, JWTEnabled: jwtEnabled},
	}

	server := httptest.NewTLSServer(router.Handler())
	t.Cleanup(server.Close)

	return &testEnv{server: server, client: server.Client()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(t, err)
	if mutate != nil {
		mutate(req)
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == authhttp.RefreshCookieName {
			return c
		}
	}
	return nil
}

func login(t *testing.T, e *testEnv) (accessToken string, cookie *http.Cookie) {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"username": testUsername, "password": testPassword}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &body)
	require.NotEmpty(t, body.AccessToken)

	c := refreshCookie(t, resp)
	require.NotNil(t, c)
	return body.AccessToken, c
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t, true, true)

	t.Run("issues tokens and an HttpOnly cookie", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/v1/auth/login",
			map[string]string{"username": testUsername, "password": testPassword}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		require.NotEmpty(t, body["access_token"])
		require.Equal(t, "Bearer", body["token_type"])
		require.NotContains(t, body, "refresh_token", "refresh token must never appear in a body")

		c := refreshCookie(t, resp)
		require.NotNil(t, c)
		require.True(t, c.HttpOnly)
		require.True(t, c.Secure)
		require.Equal(t, http.SameSiteStrictMode, c.SameSite)
		require.NotContains(t, string(raw), c.Value)
	})

	t.Run("wrong password and unknown user are indistinguishable", func(t *testing.T) {
		bad := e.do(t, http.MethodPost, "/v1/auth/login",
			map[string]string{"username": testUsername, "password": "wrong"}, nil)
		unknown := e.do(t, http.MethodPost, "/v1/auth/login",
			map[string]string{"username": "nobody", "password": "wrong"}, nil)

		require.Equal(t, http.StatusUnauthorized, bad.StatusCode)
		require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)

		var b1, b2 map[string]any
		decodeJSON(t, bad, &b1)
		decodeJSON(t, unknown, &b2)
		require.Equal(t, b1, b2)
	})
}

func TestRefreshRotation(t *testing.T) {
	e := newTestEnv(t, true, true)
	_, cookie := login(t, e)

	resp := e.do(t, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &body)
	require.NotEmpty(t, body.AccessToken)

	rotated := refreshCookie(t, resp)
	require.NotNil(t, rotated)
	require.NotEqual(t, cookie.Value, rotated.Value)

	t.Run("replaying the pre-rotation cookie fails", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		cleared := refreshCookie(t, resp)
		require.NotNil(t, cleared)
		require.Empty(t, cleared.Value)
	})

	t.Run("rotated cookie keeps working", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(rotated)
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing cookie is rejected", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/v1/auth/refresh", nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t, true, true)
	_, cookie := login(t, e)

	resp := e.do(t, http.MethodPost, "/v1/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cleared := refreshCookie(t, resp)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)

	t.Run("refresh after logout fails", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout is idempotent", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, "/v1/auth/logout", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestProtectedEndpointHybridAuth(t *testing.T) {
	e := newTestEnv(t, true, true)
	access, cookie := login(t, e)

	t.Run("bearer jwt", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/v1/userinfo", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+access)
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		decodeJSON(t, resp, &body)
		require.Equal(t, testUsername, body["username"])
		require.Equal(t, "jwt", body["auth_method"])
	})

	t.Run("legacy session cookie", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/v1/userinfo", nil, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: authhttp.RefreshCookieName, Value: cookie.Value})
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		decodeJSON(t, resp, &body)
		require.Equal(t, "session", body["auth_method"])
	})

	t.Run("no credentials", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/v1/userinfo", nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("garbage bearer with no cookie", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/v1/userinfo", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not-a-jwt-at-all")
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestProtectedEndpointJWTDisabled(t *testing.T) {
	e := newTestEnv(t, false, true)
	access, cookie := login(t, e)

	t.Run("jwt alone no longer authenticates", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/v1/userinfo", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+access)
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("session cookie still does", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/v1/userinfo", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestSessionManagement(t *testing.T) {
	e := newTestEnv(t, true, true)
	access, _ := login(t, e)
	_, otherCookie := login(t, e)

	auth := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	}

	var listed struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}

	resp := e.do(t, http.MethodGet, "/v1/auth/sessions", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &listed)
	require.Len(t, listed.Sessions, 2)

	t.Run("revoke one device", func(t *testing.T) {
		resp := e.do(t, http.MethodDelete, "/v1/auth/sessions/"+listed.Sessions[0].ID, nil, auth)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = e.do(t, http.MethodGet, "/v1/auth/sessions", nil, auth)
		var after struct {
			Sessions []struct {
				ID string `json:"id"`
			} `json:"sessions"`
		}
		decodeJSON(t, resp, &after)
		require.Len(t, after.Sessions, 1)
	})

	t.Run("unknown session id is 404", func(t *testing.T) {
		resp := e.do(t, http.MethodDelete, "/v1/auth/sessions/does-not-exist", nil, auth)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("revoke all kills every session", func(t *testing.T) {
		resp := e.do(t, http.MethodDelete, "/v1/auth/sessions", nil, auth)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		refreshResp := e.do(t, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(otherCookie)
		})
		require.Equal(t, http.StatusUnauthorized, refreshResp.StatusCode)
	})
}

func TestExpiredAccessTokenRecovery(t *testing.T) {
	e := newTestEnv(t, true, true)
	access, cookie := login(t, e)

	userinfo := func(token string) *http.Response {
		return e.do(t, http.MethodGet, "/v1/userinfo", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		})
	}

	resp := userinfo(access)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info struct {
		UserID string `json:"user_id"`
	}
	decodeJSON(t, resp, &info)

	// An access token whose lifetime has already elapsed.
	expiredCodec, err := jwtx.NewCodec([]byte(testSecret), -time.Minute)
	require.NoError(t, err)
	expired, err := expiredCodec.Sign(info.UserID, time.Now().UTC())
	require.NoError(t, err)

	resp = userinfo(expired)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	refreshResp := e.do(t, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, refreshResp, &refreshed)
	require.NotEqual(t, expired, refreshed.AccessToken)

	resp = userinfo(refreshed.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t, true, true)

	resp := e.do(t, http.MethodGet, "/livez", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
