// Package mockapi is a local development backend serving the endpoints the
// console consumes, backed by in-memory state.
package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"reuse-console/internal/config"
	"reuse-console/internal/logging"
	"reuse-console/internal/middleware"
	"reuse-console/internal/model"
)

type Server struct {
	Config config.APIConfig
	State  *State
	now    func() time.Time
}

// NewServer creates the backend and seeds the administrator account when a
// password is configured.
func NewServer(cfg config.APIConfig) (*Server, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	s := &Server{Config: cfg, State: NewState(), now: time.Now}
	if cfg.AdminPassword != "" {
		_, err := s.State.CreateAccount(newAccount{
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
			FullName: "Administrator",
			Role:     model.RoleAdmin,
		})
		if err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		logging.Logg.Info("Seeded administrator", "email", cfg.AdminEmail)
	}
	return s, nil
}

type envelope struct {
	IsSuccess bool   `json:"isSuccess"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{IsSuccess: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Message: message})
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerBody struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	UserName string `json:"userName"`
	FullName string `json:"fullName"`
}

type tokenBody struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s *Server) issue(w http.ResponseWriter, a *account, status int) {
	token, exp, err := GenerateToken(a, s.Config.SecretKey, s.Config.TokenTTL, s.now())
	if err != nil {
		logging.Logg.Error("Failed generation token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed generation token")
		return
	}
	w.Header().Set("Authorization", "Bearer "+token)
	writeData(w, status, tokenBody{AccessToken: token, ExpiresAt: exp})
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request format")
		return
	}
	if !strings.Contains(body.Email, "@") || len(body.Password) < 6 {
		writeError(w, http.StatusBadRequest, "A valid email and a password of at least 6 characters are required")
		return
	}

	a, err := s.State.CreateAccount(newAccount{
		Email:    body.Email,
		Phone:    body.Phone,
		Password: body.Password,
		UserName: body.UserName,
		FullName: body.FullName,
	})
	switch {
	case errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
		return
	case err != nil:
		logging.Logg.Error("Failed to create account", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	logging.Logg.Info("Account registered", "id", a.ID, "email", a.Email)
	s.issue(w, a, http.StatusOK)
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request format")
		return
	}
	a, err := s.State.Authenticate(body.Email, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid login or password")
		return
	}
	s.issue(w, a, http.StatusOK)
}

// LoginGoogle signs in with a Google ID token, creating the account on first use.
func (s *Server) LoginGoogle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IDToken == "" {
		writeError(w, http.StatusBadRequest, "idToken is required")
		return
	}
	email, name, err := googleEmail(body.IDToken)
	if err != nil {
		logging.Logg.Warn("Rejected Google token", "error", err)
		writeError(w, http.StatusUnauthorized, "Invalid Google token")
		return
	}

	a, ok := s.State.AccountByEmail(email)
	if !ok {
		a, err = s.State.CreateAccount(newAccount{Email: email, Password: uuid.NewString(), FullName: name})
		if err != nil && !errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if a == nil {
			a, _ = s.State.AccountByEmail(email)
		}
	}
	s.issue(w, a, http.StatusOK)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFromContext(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.State.Revoke(id.Token)
	writeData(w, http.StatusOK, nil)
}

func (s *Server) SendConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request format")
		return
	}
	id, token, err := s.State.IssueConfirmToken(body.Email)
	if err == nil {
		q := url.Values{"userId": {id}, "token": {token}}
		logging.Logg.Info("Confirmation email", "to", body.Email, "link", "/verify-email?"+q.Encode())
	}
	// Unknown addresses get the same answer.
	writeData(w, http.StatusOK, nil)
}

func (s *Server) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.State.ConfirmEmail(q.Get("userId"), q.Get("token")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired confirmation link")
		return
	}
	writeData(w, http.StatusOK, nil)
}

type profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	UserName       string    `json:"userName"`
	FullName       string    `json:"fullName,omitempty"`
	Roles          []string  `json:"roles"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toProfile(a account) profile {
	return profile{
		ID:             a.ID,
		Email:          a.Email,
		Phone:          a.Phone,
		UserName:       a.UserName,
		FullName:       a.FullName,
		Roles:          []string{roleName(a.Role)},
		EmailConfirmed: a.EmailConfirmed,
		CreatedAt:      a.CreatedAt,
	}
}

// roleName spells roles the way the production backend does.
func roleName(r model.Role) string {
	switch r {
	case model.RoleAdmin:
		return "Administrator"
	case model.RoleMerchant:
		return "Merchant"
	case model.RoleGuest:
		return "Guest"
	default:
		return "User"
	}
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) (account, bool) {
	id, err := middleware.IdentityFromContext(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return account{}, false
	}
	a, err := s.State.Account(id.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unknown account")
		return account{}, false
	}
	return a, true
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, toProfile(a))
}

func (s *Server) Wallet(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, a.Wallet)
}

func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	history := a.History
	if history == nil {
		history = []string{}
	}
	writeData(w, http.StatusOK, history)
}

func (s *Server) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.State.Accounts()
	out := make([]profile, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toProfile(a))
	}
	writeData(w, http.StatusOK, out)
}

type linkBody struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
}

func (s *Server) PaymentLink(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	var body linkBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request format")
		return
	}
	if body.OrderCode <= 0 || body.Amount <= 0 || body.ReturnURL == "" || body.CancelURL == "" {
		writeError(w, http.StatusBadRequest, "orderCode, amount, returnUrl and cancelUrl are required")
		return
	}

	err := s.State.CreatePayment(order{
		OrderCode:   body.OrderCode,
		Amount:      body.Amount,
		AccountID:   a.ID,
		Description: body.Description,
		ReturnURL:   body.ReturnURL,
		CancelURL:   body.CancelURL,
	})
	if errors.Is(err, ErrPaymentExists) {
		writeError(w, http.StatusConflict, "Order code already used")
		return
	}

	link := "http://" + r.Host + "/pay/" + strconv.FormatInt(body.OrderCode, 10)
	logging.Logg.Info("Payment link created", "order", body.OrderCode, "amount", body.Amount, "account", a.ID)
	writeData(w, http.StatusOK, map[string]string{"paymentLink": link})
}

type statusBody struct {
	Status        model.PaymentStatus `json:"status"`
	PaidAt        *time.Time          `json:"paidAt"`
	Amount        int64               `json:"amount"`
	Currency      string              `json:"currency"`
	FailureReason *string             `json:"failureReason"`
}

func toStatus(p order) statusBody {
	out := statusBody{Status: p.Status, PaidAt: p.PaidAt, Amount: p.Amount, Currency: "VND"}
	if p.FailureReason != "" {
		reason := p.FailureReason
		out.FailureReason = &reason
	}
	return out
}

// PaymentStatus answers without the envelope, as the production gateway proxy does.
func (s *Server) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	code, err := strconv.ParseInt(r.URL.Query().Get("orderCode"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "orderCode must be an integer")
		return
	}
	p, err := s.State.PollPayment(code, a.ID, s.Config.SettleAfter)
	if err != nil {
		writeError(w, http.StatusNotFound, "Payment not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toStatus(p))
}

// PayPage stands in for the hosted payment page: it sends the browser back
// to the return URL, or to the cancel URL with ?action=cancel.
func (s *Server) PayPage(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.ParseInt(chi.URLParam(r, "orderCode"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	p, ok := s.State.Payment(code)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("action") == "cancel" {
		s.State.SetPaymentStatus(code, model.PaymentCanceled, "")
		http.Redirect(w, r, p.CancelURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, p.ReturnURL, http.StatusFound)
}

// SetStatus lets a developer force a payment outcome.
func (s *Server) SetStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.ParseInt(chi.URLParam(r, "orderCode"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "orderCode must be an integer")
		return
	}
	var body struct {
		Status        model.PaymentStatus `json:"status"`
		FailureReason string              `json:"failureReason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request format")
		return
	}
	p, err := s.State.SetPaymentStatus(code, body.Status, body.FailureReason)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "Payment not found")
	default:
		writeData(w, http.StatusOK, toStatus(p))
	}
}
