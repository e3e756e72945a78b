// Package api is the REST client for the RecyConnect backend. The
// notification store and the CLI consume it; it never retries on its own.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/recyconnect/notify/internal/feed"
	"github.com/recyconnect/notify/internal/session"
)

// Client calls the backend's REST endpoints. All /api requests carry a
// bearer credential sourced from the session Accessor.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      session.Accessor
}

// New creates a Client for the given backend origin.
func New(baseURL string, timeout time.Duration, creds session.Accessor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		creds:      creds,
	}
}

// User is the backend's view of the signed-in account.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	EcoPoints int    `json:"ecoPoints"`
	Rank      int64  `json:"rank"`
}

// Credential is the payload returned by a successful login.
type Credential struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ListNotifications returns the current user's notifications, newest first.
// The backend caps the page at its own limit (top 10).
func (c *Client) ListNotifications(ctx context.Context) ([]feed.Notification, error) {
	var out []feed.Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadCount returns the authoritative unread badge value.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var count int
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &count, true); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead acknowledges a single notification by id.
func (c *Client) MarkRead(ctx context.Context, id feed.ID) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(string(id))+"/read", nil, nil, true)
}

// Me fetches the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login exchanges email and password for a bearer credential.
// It is the only unauthenticated call.
func (c *Client) Login(ctx context.Context, email, password string) (*Credential, error) {
	body := map[string]string{"email": email, "password": password}
	var cred Credential
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &cred, false); err != nil {
		return nil, err
	}
	if cred.Token == "" {
		return nil, fmt.Errorf("login: backend returned no token")
	}
	return &cred, nil
}

// do builds and executes one request, decoding a JSON response into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, err := c.creds.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: backend returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
