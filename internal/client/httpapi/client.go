// Package httpapi implements the backend contract over the closeshop REST
// API and its realtime websocket.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/closeshop/internal/client/backend"
	"github.com/dukerupert/closeshop/internal/model"
)

// refreshLeeway is how long before expiry an access token is refreshed.
const refreshLeeway = 30 * time.Second

// APIError is a non-2xx response the client has no sentinel for.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client holds at most one session and notifies registered listeners when
// it changes.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	session   *backend.Session
	listeners map[int]backend.AuthListener
	nextID    int
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		logger:    slog.Default(),
		now:       time.Now,
		listeners: make(map[int]backend.AuthListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ backend.Auth          = (*Client)(nil)
	_ backend.Profiles      = (*Client)(nil)
	_ backend.Notifications = (*Client)(nil)
)

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
	User         backend.User `json:"user"`
}

func (r sessionResponse) session() *backend.Session {
	return &backend.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    time.Unix(r.ExpiresAt, 0),
		User:         r.User,
	}
}

// GetSession returns a copy of the current session, refreshing the access
// token when it is about to expire. A rejected refresh signs the client out.
func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return nil, nil
	}
	if c.now().Add(refreshLeeway).Before(sess.ExpiresAt) {
		cp := *sess
		return &cp, nil
	}

	refreshed, err := c.refresh(ctx, sess)
	if errors.Is(err, backend.ErrUnauthorized) {
		c.logger.Info("refresh token rejected, signing out")
		c.replaceSession(sess, nil, backend.EventSignedOut)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if refreshed == nil {
		return nil, nil
	}
	cp := *refreshed
	return &cp, nil
}

// refresh exchanges old's refresh token. The result is dropped, and nil
// returned, when the session was replaced or signed out while the request
// was in flight.
func (c *Client) refresh(ctx context.Context, old *backend.Session) (*backend.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": old.RefreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	sess := resp.session()
	if !c.replaceSession(old, sess, backend.EventTokenRefreshed) {
		c.logger.Debug("discarding stale refresh", "user_id", sess.User.ID)
		return nil, nil
	}
	return sess, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %s", backend.ErrUnauthorized, apiErr.Message)
		}
		return nil, err
	}
	sess := resp.session()
	c.setSession(sess, backend.EventSignedIn)
	cp := *sess
	return &cp, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	sess := resp.session()
	c.setSession(sess, backend.EventSignedIn)
	cp := *sess
	return &cp, nil
}

// SignOut drops the local session before revoking it on the backend.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	c.setSession(nil, backend.EventSignedOut)
	if sess == nil {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/v1/logout", sess.AccessToken, nil, nil)
	if errors.Is(err, backend.ErrUnauthorized) {
		return nil
	}
	return err
}

func (c *Client) OnAuthStateChange(fn backend.AuthListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) setSession(sess *backend.Session, event backend.AuthEvent) {
	c.mu.Lock()
	c.session = sess
	listeners := c.snapshotListeners()
	c.mu.Unlock()
	c.emit(sess, event, listeners)
}

// replaceSession installs sess only if old is still the current session.
func (c *Client) replaceSession(old, sess *backend.Session, event backend.AuthEvent) bool {
	c.mu.Lock()
	if c.session != old {
		c.mu.Unlock()
		return false
	}
	c.session = sess
	listeners := c.snapshotListeners()
	c.mu.Unlock()
	c.emit(sess, event, listeners)
	return true
}

// snapshotListeners must be called with c.mu held.
func (c *Client) snapshotListeners() []backend.AuthListener {
	listeners := make([]backend.AuthListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func (c *Client) emit(sess *backend.Session, event backend.AuthEvent, listeners []backend.AuthListener) {
	for _, fn := range listeners {
		if sess == nil {
			fn(event, nil)
			continue
		}
		cp := *sess
		fn(event, &cp)
	}
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", "", map[string]string{"email": email}, nil)
}

// VerifyRecovery sets a new password with an emailed code. The backend
// revokes every session of that account, so a matching local session is
// dropped as well.
func (c *Client) VerifyRecovery(ctx context.Context, email, code, newPassword string) error {
	err := c.do(ctx, http.MethodPost, "/auth/v1/verify-recovery", "",
		map[string]string{"email": email, "code": code, "password": newPassword}, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil && strings.EqualFold(sess.User.Email, email) {
		c.setSession(nil, backend.EventSignedOut)
	}
	return nil
}

func (c *Client) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var p model.Profile
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles/"+url.PathEscape(id), token, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var rows []model.Notification
	path := "/rest/v1/notifications?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SendMessage posts a chat message. The backend turns it into a
// notification for the receiver.
func (c *Client) SendMessage(ctx context.Context, receiverID, content string) (*model.Message, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var msg model.Message
	body := map[string]string{"receiver_id": receiverID, "content": content}
	if err := c.do(ctx, http.MethodPost, "/rest/v1/messages", token, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) ListProducts(ctx context.Context, shopID int64) ([]model.Product, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	path := "/rest/v1/products"
	if shopID > 0 {
		path += fmt.Sprintf("?shop_id=%d", shopID)
	}
	var products []model.Product
	if err := c.do(ctx, http.MethodGet, path, token, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", backend.ErrUnauthorized
	}
	return sess.AccessToken, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", backend.ErrUnauthorized, e.Error)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", backend.ErrNotFound, e.Error)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
