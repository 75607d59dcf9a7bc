package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reuse-console/internal/auth"
	"reuse-console/internal/config"
	"reuse-console/internal/model"
	"reuse-console/internal/navigation"
	"reuse-console/internal/notify"
	"reuse-console/internal/packages"
	"reuse-console/internal/payment"
	"reuse-console/internal/store"
	"reuse-console/internal/transport"
	"reuse-console/internal/wallet"
)

const returnBase = "http://localhost:3000/wallet"

// console wires the client packages against a running mock backend.
type console struct {
	nav      *navigation.Router
	notes    *notify.Recorder
	storage  *store.Memory
	api      *transport.Client
	sessions *auth.Manager
	wallet   *wallet.Service
	poller   *payment.Poller
}

func newBackend(t *testing.T, cfg config.APIConfig) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.SecretKey == "" {
		cfg.SecretKey = "test-secret"
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newConsole(baseURL string) *console {
	c := &console{
		nav:     navigation.NewRouter("/"),
		notes:   &notify.Recorder{},
		storage: store.NewMemory(),
	}
	tokens := &auth.TokenHolder{}
	c.api = transport.New(baseURL, tokens, transport.WithNavigator(c.nav), transport.WithNotifier(c.notes))
	c.sessions = auth.NewManager(c.api, c.storage, tokens, auth.WithNavigator(c.nav), auth.WithNotifier(c.notes))
	c.wallet = wallet.NewService(c.api, nil)
	c.poller = payment.NewPoller(c.api, c.wallet, returnBase,
		payment.WithInterval(time.Millisecond),
		payment.WithNavigator(c.nav),
		payment.WithNotifier(c.notes),
	)
	return c
}

func register(t *testing.T, c *console, email string) {
	t.Helper()
	require.NoError(t, c.sessions.Register(context.Background(), auth.RegisterRequest{
		Email:    email,
		Password: "password123",
		FullName: "Test User",
	}))
}

// followPayPage opens a payment link and returns where the page redirects.
func followPayPage(t *testing.T, link string) *url.URL {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(link)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc
}

func TestRegisterAndLogin(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	ctx := context.Background()

	register(t, c, "Consumer@Example.com")
	s := c.sessions.Snapshot()
	assert.True(t, s.IsAuthenticated)
	assert.Nil(t, s.User, "register does not load the profile")

	c.sessions.Logout(ctx, auth.LogoutOptions{})
	require.NoError(t, c.sessions.Login(ctx, auth.Credentials{Email: "consumer@example.com", Password: "password123"}))

	s = c.sessions.Snapshot()
	require.NotNil(t, s.User)
	assert.Equal(t, "consumer@example.com", s.User.Email)
	assert.Equal(t, "Test User", s.User.DisplayName)
	assert.Equal(t, model.RoleConsumer, s.User.Role)
	exp, ok := auth.TokenExpiry(s.Token)
	assert.True(t, ok)
	assert.True(t, exp.After(time.Now()))
}

func TestRegisterValidation(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "invalid json", body: "invalid-json", code: http.StatusBadRequest},
		{name: "short password", body: `{"email":"a@b.c","password":"123"}`, code: http.StatusBadRequest},
		{name: "ok", body: `{"email":"dup@b.c","password":"123456"}`, code: http.StatusOK},
		{name: "duplicate", body: `{"email":"DUP@b.c","password":"123456"}`, code: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/auth/register", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
			if tt.code == http.StatusOK {
				assert.True(t, strings.HasPrefix(resp.Header.Get("Authorization"), "Bearer "))
			}
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	register(t, c, "a@example.com")
	c.sessions.Logout(context.Background(), auth.LogoutOptions{})
	c.nav.Hard("/login")

	err := c.sessions.Login(context.Background(), auth.Credentials{Email: "a@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrCredentials)
	assert.Equal(t, "/login", c.nav.Current(), "401 on the login page does not redirect")
}

func TestLogoutRevokesToken(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	ctx := context.Background()
	register(t, c, "a@example.com")
	token := c.sessions.Token()

	c.sessions.Logout(ctx, auth.LogoutOptions{Redirect: "/login", CallAPI: true})
	assert.Empty(t, c.storage.Keys())
	assert.Equal(t, "/login", c.nav.Current())

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/accounts/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthorizedRedirectsToLogin(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	c.nav.Push("/wallet")

	_, err := c.wallet.Refresh(context.Background())
	assert.Equal(t, http.StatusUnauthorized, transport.StatusCode(err))
	assert.Equal(t, "/login?returnUrl=%2Fwallet", c.nav.Current())
}

func TestAdminRoute(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{AdminEmail: "root@reuse.local", AdminPassword: "rootpass"})
	ctx := context.Background()

	consumer := newConsole(ts.URL)
	register(t, consumer, "a@example.com")
	consumer.nav.Push("/admin")
	err := consumer.api.Get(ctx, "admin/accounts", nil, nil)
	assert.Equal(t, http.StatusForbidden, transport.StatusCode(err))
	assert.Equal(t, "/", consumer.nav.Current())

	admin := newConsole(ts.URL)
	require.NoError(t, admin.sessions.Login(ctx, auth.Credentials{Email: "root@reuse.local", Password: "rootpass"}))
	assert.Equal(t, model.RoleAdmin, admin.sessions.Snapshot().User.Role)
	assert.Equal(t, auth.Decision{Action: auth.Allow}, auth.NewGuard(admin.sessions).Decide(ctx, "/admin"))

	var accounts []map[string]any
	require.NoError(t, admin.api.Get(ctx, "admin/accounts", nil, &accounts))
	assert.Len(t, accounts, 2)
}

func TestLoginGoogle(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "g@example.com",
		"name":  "Gia Tran",
	}).SignedString([]byte("google"))
	require.NoError(t, err)

	require.NoError(t, c.sessions.LoginGoogle(context.Background(), idToken))
	s := c.sessions.Snapshot()
	require.NotNil(t, s.User)
	assert.Equal(t, "Gia Tran", s.User.DisplayName)

	err = c.sessions.LoginGoogle(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrCredentials)
}

func TestEmailConfirmation(t *testing.T) {
	srv, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	ctx := context.Background()
	register(t, c, "a@example.com")
	require.NoError(t, c.sessions.RefreshProfile(ctx))

	require.NoError(t, c.sessions.SendConfirmationEmail(ctx, "a@example.com"))
	require.NoError(t, c.sessions.SendConfirmationEmail(ctx, "nobody@example.com"))

	acc, ok := srv.State.AccountByEmail("a@example.com")
	require.True(t, ok)
	a, err := srv.State.Account(acc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, a.ConfirmToken)

	assert.Error(t, c.sessions.VerifyEmail(ctx, a.ID, "wrong"))
	require.NoError(t, c.sessions.VerifyEmail(ctx, a.ID, a.ConfirmToken))
	assert.True(t, c.sessions.Snapshot().User.EmailConfirmed)

	require.NoError(t, c.sessions.RefreshProfile(ctx))
	assert.True(t, c.sessions.Snapshot().User.EmailConfirmed)
}

func TestTopUpSucceeds(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{SettleAfter: 3})
	c := newConsole(ts.URL)
	ctx := context.Background()
	register(t, c, "a@example.com")

	attempt, err := c.poller.RequestLink(ctx, 100000)
	require.NoError(t, err)
	require.NotEmpty(t, attempt.Link)

	back := followPayPage(t, attempt.Link)
	assert.Equal(t, "true", back.Query().Get("success"))
	c.nav.Push(back.RequestURI())

	res := c.poller.HandleReturn(ctx, back).Wait()
	assert.Equal(t, payment.Succeeded, res.State)
	assert.Equal(t, 3, res.Attempt.AttemptsMade)
	assert.Equal(t, "/wallet", c.nav.Current())

	snap, ok := c.wallet.Model().Current()
	require.True(t, ok)
	assert.Equal(t, int64(1000), snap.Wallet.Points)
	require.Len(t, snap.History, 1)
	assert.Contains(t, snap.History[0].Description, "Top-up 100000")
}

func TestTopUpCanceledOnPaymentPage(t *testing.T) {
	srv, ts := newBackend(t, config.APIConfig{SettleAfter: 1})
	c := newConsole(ts.URL)
	ctx := context.Background()
	register(t, c, "a@example.com")

	attempt, err := c.poller.RequestLink(ctx, 20000)
	require.NoError(t, err)

	back := followPayPage(t, attempt.Link+"?action=cancel")
	res := c.poller.HandleReturn(ctx, back).Wait()
	assert.Equal(t, payment.Canceled, res.State)

	p, ok := srv.State.Payment(attempt.OrderCode)
	require.True(t, ok)
	assert.Equal(t, model.PaymentCanceled, p.Status)
	assert.Zero(t, p.Polls)
}

func TestTopUpFailedByDeveloper(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	ctx := context.Background()
	register(t, c, "a@example.com")

	attempt, err := c.poller.RequestLink(ctx, 50000)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"status": "Failed", "failureReason": "insufficient funds"})
	resp, err := http.Post(ts.URL+"/dev/payments/"+jsonNumber(attempt.OrderCode)+"/status", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	back := followPayPage(t, attempt.Link)
	res := c.poller.HandleReturn(ctx, back).Wait()
	assert.Equal(t, payment.Failed, res.State)
	assert.ErrorIs(t, res.Err, payment.ErrPaymentFailed)

	notes := c.notes.All()
	last := notes[len(notes)-1]
	assert.Equal(t, notify.Error, last.Level)
	assert.Equal(t, "insufficient funds", last.Description)
}

func TestDuplicateOrderCode(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	c := newConsole(ts.URL)
	c.poller = payment.NewPoller(c.api, c.wallet, returnBase, payment.WithClock(func() time.Time { return fixed }))
	register(t, c, "a@example.com")

	_, err := c.poller.RequestLink(context.Background(), 10000)
	require.NoError(t, err)
	_, err = c.poller.RequestLink(context.Background(), 10000)
	assert.Equal(t, http.StatusConflict, transport.StatusCode(err))
	assert.Equal(t, payment.Idle, c.poller.State())
}

func TestTopUpStopsWhenTokenRevoked(t *testing.T) {
	srv, ts := newBackend(t, config.APIConfig{SettleAfter: 3})
	c := newConsole(ts.URL)
	ctx := context.Background()
	register(t, c, "a@example.com")

	attempt, err := c.poller.RequestLink(ctx, 10000)
	require.NoError(t, err)
	back := followPayPage(t, attempt.Link)
	srv.State.Revoke(c.sessions.Token())

	c.nav.Push(back.RequestURI())
	before := c.notes.Len()
	res := c.poller.HandleReturn(ctx, back).Wait()

	assert.ErrorIs(t, res.Err, payment.ErrPollAborted)
	assert.Equal(t, 1, res.Attempt.AttemptsMade)
	assert.Equal(t, navigation.LoginRedirect(back.RequestURI()), c.nav.Current())
	notes := c.notes.All()
	require.Len(t, notes, before+1, "no payment outcome on top of the sign-in prompt")
	assert.Equal(t, "Session expired", notes[before].Title)

	p, ok := srv.State.Payment(attempt.OrderCode)
	require.True(t, ok)
	assert.Equal(t, model.PaymentPending, p.Status)
}

func TestTerminalPaymentStatusIsFinal(t *testing.T) {
	st := NewState()
	a, err := st.CreateAccount(newAccount{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	require.NoError(t, st.CreatePayment(order{OrderCode: 1, Amount: 10000, AccountID: a.ID}))

	_, err = st.SetPaymentStatus(1, model.PaymentFailed, "declined")
	require.NoError(t, err)
	p, err := st.SetPaymentStatus(1, model.PaymentSucceeded, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, p.Status)

	got, err := st.Account(a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Wallet.Points)
	assert.Empty(t, got.History)
}

func TestPackagesAndQRCodes(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{AdminEmail: "root@reuse.local", AdminPassword: "rootpass"})
	ctx := context.Background()

	owner := newConsole(ts.URL)
	register(t, owner, "owner@example.com")
	other := newConsole(ts.URL)
	register(t, other, "other@example.com")
	admin := newConsole(ts.URL)
	require.NoError(t, admin.sessions.Login(ctx, auth.Credentials{Email: "root@reuse.local", Password: "rootpass"}))

	mine := packages.NewService(owner.api)
	created, err := mine.Create(ctx, packages.Draft{
		Items:      []model.PackageItem{{ProductID: "cup-500", Quantity: 3}},
		TotalPrice: 15000,
	})
	require.NoError(t, err)
	assert.Equal(t, "PKG-001", created.ID)
	assert.Equal(t, model.PackageActive, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = packages.NewService(other.api).Get(ctx, created.ID)
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
	all, err := packages.NewService(admin.api).List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	returned, err := mine.SetStatus(ctx, created.ID, model.PackageReturned)
	require.NoError(t, err)
	assert.Equal(t, model.PackageReturned, returned.Status)
	assert.Equal(t, created.Items, returned.Items)

	codes, err := mine.GenerateQR(ctx, []string{created.ID, "INVALID-001"})
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "success", codes[0].Status)
	assert.Equal(t, ts.URL+"/package/"+created.ID, codes[0].QRCodeURL)
	assert.Equal(t, "error", codes[1].Status)

	_, err = packages.NewService(other.api).GenerateQR(ctx, []string{created.ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Generated 0 of 1 QR codes")

	require.NoError(t, mine.Delete(ctx, created.ID))
	list, err := mine.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreatePackageValidation(t *testing.T) {
	_, ts := newBackend(t, config.APIConfig{})
	c := newConsole(ts.URL)
	register(t, c, "a@example.com")

	err := c.api.Post(context.Background(), "package", map[string]any{"items": []any{}}, nil)
	assert.Equal(t, http.StatusBadRequest, transport.StatusCode(err))
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
