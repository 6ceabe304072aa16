// Package authclient is the Go SDK for the auth service. It mirrors
// what a browser client does: the access token lives in memory, the
// refresh token lives in the HTTP client's cookie jar and is never
// inspected, and concurrent refresh attempts across "tabs" are
// collapsed to one via a shared Lock and Broadcast.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
)

var (
	// ErrUnauthorized means the server rejected the credentials or the
	// refresh token. Terminal: the caller must log in again.
	ErrUnauthorized = errors.New("authclient: unauthorized")

	// ErrUnavailable means the server answered 5xx; the operation is
	// retryable.
	ErrUnavailable = errors.New("authclient: service unavailable")
)

// Client talks to one auth service. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client with its own cookie jar, which is where
// the HttpOnly refresh cookie lives.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

// TokenResponse is the body of a successful login or refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login authenticates with a password and primes the cookie jar with
// the refresh cookie.
func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doTokenRequest(req)
}

// Refresh exchanges the refresh cookie for a new access token. The
// rotated cookie, if any, lands back in the jar automatically.
func (c *Client) Refresh(ctx context.Context) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/auth/refresh", nil)
	if err != nil {
		return TokenResponse{}, err
	}
	return c.doTokenRequest(req)
}

// Logout revokes the current session and drops the cookie.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/auth/logout", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ErrUnavailable
	}
	return nil
}

func (c *Client) doTokenRequest(req *http.Request) (TokenResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return TokenResponse{}, ErrUnauthorized
	case resp.StatusCode >= 500:
		return TokenResponse{}, ErrUnavailable
	default:
		return TokenResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return TokenResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return tr, nil
}
