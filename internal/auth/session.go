package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"reuse-console/internal/logging"
	"reuse-console/internal/model"
	"reuse-console/internal/navigation"
	"reuse-console/internal/notify"
	"reuse-console/internal/store"
	"reuse-console/internal/transport"
)

var (
	ErrCredentials       = errors.New("invalid email or password")
	ErrMalformedResponse = errors.New("access token missing from response")
	ErrNotAuthenticated  = errors.New("not authenticated")
)

// AuthError is returned when signing in or up fails. It wraps ErrCredentials,
// ErrMalformedResponse or the underlying transport error.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// Client is the subset of the API client the session manager calls.
type Client interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	UserName string `json:"userName"`
	FullName string `json:"fullName"`
}

type LogoutOptions struct {
	Redirect string // hard navigation target after sign-out; empty stays put
	CallAPI  bool   // revoke the token on the backend first
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

func (r tokenResponse) access() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// Manager owns the signed-in session: it is the single writer of the token
// holder and of the auth-storage snapshot.
type Manager struct {
	api      Client
	storage  store.Storage
	tokens   *TokenHolder
	nav      navigation.Navigator
	notifier notify.Notifier
	now      func() time.Time
	onClear  []func()

	mu       sync.RWMutex
	session  model.Session
	hydrated bool

	rehydrateMu sync.Mutex
}

type Option func(*Manager)

func WithNavigator(nav navigation.Navigator) Option {
	return func(m *Manager) { m.nav = nav }
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// OnSignOut registers fn to run whenever the session is cleared, by Logout
// or by token expiry. Stores holding per-account data reset themselves here.
func OnSignOut(fn func()) Option {
	return func(m *Manager) { m.onClear = append(m.onClear, fn) }
}

func NewManager(api Client, storage store.Storage, tokens *TokenHolder, opts ...Option) *Manager {
	m := &Manager{
		api:      api,
		storage:  storage,
		tokens:   tokens,
		notifier: notify.Discard{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Snapshot() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (m *Manager) Token() string {
	return m.tokens.Token()
}

func (m *Manager) Hydrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hydrated
}

// Login exchanges credentials for a token. The token is persisted and
// installed before the profile is fetched; a failed profile fetch leaves a
// degraded but authenticated session and is not an error.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	var resp tokenResponse
	if err := m.api.Post(ctx, "auth/login", creds, &resp); err != nil {
		return m.authFailed("login", err)
	}
	return m.signedIn(ctx, "login", resp)
}

// LoginGoogle exchanges a Google ID token for a session.
func (m *Manager) LoginGoogle(ctx context.Context, idToken string) error {
	var resp tokenResponse
	body := map[string]string{"idToken": idToken}
	if err := m.api.Post(ctx, "auth/login-google", body, &resp); err != nil {
		return m.authFailed("google login", err)
	}
	return m.signedIn(ctx, "google login", resp)
}

// Register creates an account and keeps the returned token. Unlike Login it
// does not fetch the profile.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) error {
	var resp tokenResponse
	if err := m.api.Post(ctx, "auth/register", req, &resp); err != nil {
		return m.authFailed("register", err)
	}
	token := resp.access()
	if token == "" {
		return m.authFailed("register", ErrMalformedResponse)
	}
	m.establish(ctx, token)
	m.notifier.Notify(notify.Notification{Level: notify.Success, Title: "Account created"})
	return nil
}

func (m *Manager) signedIn(ctx context.Context, op string, resp tokenResponse) error {
	token := resp.access()
	if token == "" {
		return m.authFailed(op, ErrMalformedResponse)
	}
	m.establish(ctx, token)

	if err := m.loadProfile(ctx); err != nil {
		logging.Logg.Warn("Profile fetch failed, keeping token-only session", "error", err)
	}
	m.notifier.Notify(notify.Notification{Level: notify.Success, Title: "Welcome back!"})
	return nil
}

func (m *Manager) authFailed(op string, err error) error {
	switch transport.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized:
		err = fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	aerr := &AuthError{Op: op, Err: err}
	logging.Logg.Info("Authentication failed", "op", op, "error", err)
	m.notifier.Notify(notify.Notification{
		Level:       notify.Error,
		Title:       strings.ToUpper(op[:1]) + op[1:] + " failed",
		Description: err.Error(),
	})
	return aerr
}

// establish installs a token-only session and persists it right away.
func (m *Manager) establish(ctx context.Context, token string) {
	m.mu.Lock()
	m.session = model.Session{Token: token, IsAuthenticated: true}
	m.hydrated = true
	snapshot := m.session
	m.mu.Unlock()

	m.tokens.set(token)
	m.persist(ctx, snapshot)
}

type profilePayload struct {
	ID             json.RawMessage `json:"id"`
	Email          string          `json:"email"`
	UserName       string          `json:"userName"`
	DisplayName    string          `json:"displayName"`
	FullName       string          `json:"fullName"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	Avatar         string          `json:"avatar"`
	Role           any             `json:"role"`
	Roles          any             `json:"roles"`
	EmailConfirmed bool            `json:"emailConfirmed"`
	IsVerified     bool            `json:"isVerified"`
	CreatedAt      string          `json:"createdAt"`
}

func (p profilePayload) toProfile() *model.AccountProfile {
	role := p.Role
	if p.Roles != nil {
		role = p.Roles
	}
	display := p.DisplayName
	switch {
	case display != "":
	case p.FullName != "":
		display = p.FullName
	case p.FirstName != "" && p.LastName != "":
		display = p.FirstName + " " + p.LastName
	case p.UserName != "":
		display = p.UserName
	default:
		display = p.Email
	}
	createdAt, _ := time.Parse(time.RFC3339, p.CreatedAt)
	userName := p.UserName
	if userName == "" {
		userName = p.Email
	}
	return &model.AccountProfile{
		ID:             strings.Trim(string(p.ID), `"`),
		Email:          p.Email,
		UserName:       userName,
		DisplayName:    display,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Avatar:         p.Avatar,
		Role:           MapRole(role),
		EmailConfirmed: p.EmailConfirmed || p.IsVerified,
		CreatedAt:      createdAt,
	}
}

func (m *Manager) loadProfile(ctx context.Context) error {
	var p profilePayload
	if err := m.api.Get(ctx, "accounts/me", nil, &p); err != nil {
		return err
	}
	profile := p.toProfile()

	m.mu.Lock()
	if !m.session.IsAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.session.User = profile
	snapshot := m.session
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	return nil
}

// RefreshProfile reloads the profile of the signed-in account, upgrading a
// degraded session when it succeeds.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	if !m.Snapshot().IsAuthenticated {
		return ErrNotAuthenticated
	}
	return m.loadProfile(ctx)
}

// Logout never fails: revoking is best effort and storage errors are logged.
// An expired token is not sent for revocation, the backend would only answer 401.
func (m *Manager) Logout(ctx context.Context, opts LogoutOptions) {
	token := m.tokens.Token()
	switch {
	case !opts.CallAPI || token == "":
	case TokenExpired(token, m.now()):
		logging.Logg.Debug("Token already expired, skipping revoke")
	default:
		if err := m.api.Post(ctx, "auth/logout", nil, nil); err != nil {
			logging.Logg.Warn("Token revoke failed", "error", err)
		}
	}
	m.clear(ctx, store.AllKeys...)

	if opts.Redirect != "" && m.nav != nil {
		m.nav.Hard(opts.Redirect)
	}
}

func (m *Manager) clear(ctx context.Context, keys ...string) {
	if err := m.storage.Delete(ctx, keys...); err != nil {
		logging.Logg.Warn("Failed to clear client storage", "error", err)
	}
	m.tokens.set("")

	m.mu.Lock()
	m.session = model.Session{}
	m.mu.Unlock()

	for _, fn := range m.onClear {
		fn()
	}
}

// Rehydrate restores the session from storage. Only the first call reads
// storage; later calls return immediately, so it is safe to call from
// every entry point. The route guard waits until it has completed.
func (m *Manager) Rehydrate(ctx context.Context) error {
	m.rehydrateMu.Lock()
	defer m.rehydrateMu.Unlock()
	if m.Hydrated() {
		return nil
	}

	var s model.Session
	err := store.LoadJSON(ctx, m.storage, store.AuthKey, &s)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		err = nil
	default:
		logging.Logg.Warn("Stored session unreadable, starting signed out", "error", err)
		s = model.Session{}
	}

	if !s.IsAuthenticated || s.Token == "" {
		s = model.Session{}
	}

	m.mu.Lock()
	m.session = s
	m.hydrated = true
	m.mu.Unlock()
	m.tokens.set(s.Token)

	m.ExpireIfNeeded(ctx)
	return err
}

// ExpireIfNeeded signs out a session whose token has passed its exp claim
// and sends the user to the login page. It reports whether it did so.
func (m *Manager) ExpireIfNeeded(ctx context.Context) bool {
	return m.expire(ctx, true)
}

func (m *Manager) expire(ctx context.Context, navigate bool) bool {
	token := m.tokens.Token()
	if token == "" || !TokenExpired(token, m.now()) {
		return false
	}
	logging.Logg.Info("Session token expired")
	m.clear(ctx, store.AuthKey)

	if navigate && m.nav != nil {
		current := m.nav.Current()
		if !IsPublicPath(navigation.Path(current)) {
			m.nav.Hard(navigation.LoginRedirect(current))
		}
	}
	m.notifier.Notify(notify.Notification{
		Level:       notify.Info,
		Title:       "Session expired",
		Description: "Please sign in again.",
	})
	return true
}

// SendConfirmationEmail asks the backend to mail a confirmation link.
func (m *Manager) SendConfirmationEmail(ctx context.Context, email string) error {
	return m.api.Post(ctx, "auth/send-confirm-email", map[string]string{"email": email}, nil)
}

// VerifyEmail confirms an address with the token from the emailed link. It
// runs signed out; when the matching account is signed in its profile is
// marked confirmed.
func (m *Manager) VerifyEmail(ctx context.Context, userID, token string) error {
	q := url.Values{"userId": {userID}, "token": {token}}
	if err := m.api.Get(ctx, "auth/verify-email", q, nil); err != nil {
		return err
	}

	m.mu.Lock()
	if m.session.User == nil || m.session.User.ID != userID {
		m.mu.Unlock()
		return nil
	}
	m.session.User.EmailConfirmed = true
	snapshot := m.session
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	return nil
}

// persist writes the whole snapshot as one blob. Failures are logged only:
// the in-memory session stays authoritative for this process.
func (m *Manager) persist(ctx context.Context, s model.Session) {
	if err := store.SaveJSON(ctx, m.storage, store.AuthKey, s); err != nil {
		logging.Logg.Warn("Failed to persist session", "error", err)
	}
}
