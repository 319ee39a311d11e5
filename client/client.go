// Package client talks to the roomchat backend: email/password auth, the
// append-only message collection, and its realtime snapshot stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"roomchat/models"
)

// APIError carries the backend's error message unchanged.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client is a roomchat API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu       sync.RWMutex
	identity *models.Identity
}

// New creates a client for the backend at baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CurrentUser returns the signed-in identity, or nil.
func (c *Client) CurrentUser() *models.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil
	}
	id := *c.identity
	return &id
}

// Restore reuses an identity saved by an earlier run.
func (c *Client) Restore(id models.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = &id
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return ""
	}
	return c.identity.Token
}

// SignUp creates an account. The backend also opens a session, which is
// kept as the current identity.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Identity, error) {
	return c.authenticate(ctx, "/api/auth/signup", email, password)
}

// SignIn opens a session for an existing account.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	return c.authenticate(ctx, "/api/auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*models.Identity, error) {
	body := map[string]string{"email": email, "password": password}

	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	id := models.Identity{UID: resp.User.UID, Email: resp.User.Email, Token: resp.Token}
	c.Restore(id)
	return &id, nil
}

// SignOut ends the session server-side and forgets it locally. The local
// identity is dropped even when the request fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)

	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()

	return err
}

// Me checks the current session against the backend.
func (c *Client) Me(ctx context.Context) (*models.UserResponse, error) {
	var user models.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AddMessage appends a message to the room. The backend assigns the id,
// sender and ordering timestamp.
func (c *Client) AddMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error) {
	var created models.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", msg, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListMessages reads the ordered collection once.
func (c *Client) ListMessages(ctx context.Context) ([]models.Document, error) {
	var snapshot models.SnapshotPayload
	if err := c.do(ctx, http.MethodGet, "/api/messages", nil, &snapshot); err != nil {
		return nil, err
	}
	return snapshot.Documents, nil
}

// do performs an HTTP request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp.Error = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
