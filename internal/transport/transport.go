package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reuse-console/internal/logging"
	"reuse-console/internal/navigation"
	"reuse-console/internal/notify"
)

// TokenSource supplies the bearer credential for outgoing requests.
// An empty string means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// Error is a failed API call: a network failure (StatusCode 0), a non-2xx
// response, or a 2xx envelope flagged as unsuccessful.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("request failed: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status of a transport error, or 0.
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	nav      navigation.Navigator
	notifier notify.Notifier

	mu sync.Mutex
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithNavigator enables the global 401/403 redirects.
func WithNavigator(nav navigation.Navigator) Option {
	return func(c *Client) { c.nav = nav }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		tokens:   tokens,
		notifier: notify.Discard{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// Do sends one request and decodes the response into out (which may be nil).
// Enveloped responses ({"data": ..., "success": ...}) are unwrapped.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logging.Logg.Warn("api request failed", "method", method, "path", path, "error", err)
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	logging.Logg.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			c.handleUnauthorized()
		case http.StatusForbidden:
			c.handleForbidden()
		}
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	return decode(resp.StatusCode, raw, out)
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Success   *bool           `json:"success"`
	IsSuccess *bool           `json:"isSuccess"`
	Message   string          `json:"message"`
}

func decode(status int, raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var env envelope
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &env); err != nil {
			return &Error{StatusCode: status, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}
	if (env.Success != nil && !*env.Success) || (env.IsSuccess != nil && !*env.IsSuccess) {
		return &Error{StatusCode: status, Message: env.Message}
	}
	if out == nil {
		return nil
	}

	payload := raw
	if env.Data != nil {
		payload = env.Data
	}
	if string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{StatusCode: status, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Title != "":
			return body.Title
		case body.Error != "":
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

// handleUnauthorized sends the user to the login page, remembering where they were.
// Flows that run signed out (login itself, email verification) are left alone.
func (c *Client) handleUnauthorized() {
	if c.nav == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.nav.Current()
	path := navigation.Path(current)
	if path == "/login" || strings.HasPrefix(path, "/verify-email") {
		return
	}
	logging.Logg.Info("Unauthorized response, redirecting to login", "from", current)
	c.nav.Hard(navigation.LoginRedirect(current))
	c.notifier.Notify(notify.Notification{
		Level:       notify.Info,
		Title:       "Session expired",
		Description: "Please sign in again.",
	})
}

func (c *Client) handleForbidden() {
	if c.nav == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	logging.Logg.Warn("You have no permission on this", "from", c.nav.Current())
	c.nav.Hard("/")
}
