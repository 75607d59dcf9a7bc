package mockapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"reuse-console/internal/model"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrAccountNotFound    = errors.New("account not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrPaymentExists      = errors.New("order code already used")
	ErrInvalidStatus      = errors.New("invalid payment status")
)

// pointsPerUnit converts a top-up amount into wallet points.
const pointsPerUnit = 100

type account struct {
	ID             string
	Email          string
	Phone          string
	UserName       string
	FullName       string
	PasswordHash   string
	Role           model.Role
	EmailConfirmed bool
	ConfirmToken   string
	CreatedAt      time.Time
	Wallet         model.WalletData
	History        []string
}

type order struct {
	OrderCode     int64
	Amount        int64
	AccountID     string
	Description   string
	ReturnURL     string
	CancelURL     string
	Status        model.PaymentStatus
	Polls         int
	PaidAt        *time.Time
	FailureReason string
}

// State is the backend's in-memory data set.
type State struct {
	mu       sync.Mutex
	byEmail  map[string]*account
	byID     map[string]*account
	payments map[int64]*order
	packages map[string]*model.Package
	pkgSeq   int
	revoked  map[string]struct{}
	now      func() time.Time
}

func NewState() *State {
	return &State{
		byEmail:  make(map[string]*account),
		byID:     make(map[string]*account),
		payments: make(map[int64]*order),
		packages: make(map[string]*model.Package),
		revoked:  make(map[string]struct{}),
		now:      time.Now,
	}
}

func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

func CheckPassword(passwordHash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password))
}

type newAccount struct {
	Email    string
	Phone    string
	Password string
	UserName string
	FullName string
	Role     model.Role
}

func (s *State) CreateAccount(in newAccount) (*account, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if in.Role == "" {
		in.Role = model.RoleConsumer
	}
	if in.UserName == "" {
		in.UserName = email
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, ErrEmailTaken
	}
	a := &account{
		ID:           uuid.NewString(),
		Email:        email,
		Phone:        in.Phone,
		UserName:     in.UserName,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    s.now().UTC(),
	}
	a.Wallet.AccountID = a.ID
	s.byEmail[email] = a
	s.byID[a.ID] = a
	return a, nil
}

func (s *State) Authenticate(email, password string) (*account, error) {
	s.mu.Lock()
	a, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := CheckPassword(a.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

func (s *State) AccountByEmail(email string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return a, ok
}

// Account returns a copy of the account with id.
func (s *State) Account(id string) (account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return account{}, ErrAccountNotFound
	}
	out := *a
	out.History = append([]string(nil), a.History...)
	return out, nil
}

func (s *State) Accounts() []account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]account, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// IssueConfirmToken stores and returns a fresh email confirmation token.
func (s *State) IssueConfirmToken(email string) (id, token string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", "", ErrAccountNotFound
	}
	a.ConfirmToken = uuid.NewString()
	return a.ID, a.ConfirmToken, nil
}

func (s *State) ConfirmEmail(id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || a.ConfirmToken == "" || a.ConfirmToken != token {
		return ErrAccountNotFound
	}
	a.EmailConfirmed = true
	a.ConfirmToken = ""
	return nil
}

func (s *State) Revoke(token string) {
	s.mu.Lock()
	s.revoked[token] = struct{}{}
	s.mu.Unlock()
}

func (s *State) Revoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[token]
	return ok
}

func (s *State) CreatePayment(p order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.OrderCode]; ok {
		return ErrPaymentExists
	}
	p.Status = model.PaymentPending
	s.payments[p.OrderCode] = &p
	return nil
}

// PollPayment records a status check. A pending payment succeeds once it
// has been polled settleAfter times; settleAfter 0 leaves it pending.
func (s *State) PollPayment(orderCode int64, accountID string, settleAfter int) (order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderCode]
	if !ok || p.AccountID != accountID {
		return order{}, ErrPaymentNotFound
	}
	p.Polls++
	if p.Status == model.PaymentPending && settleAfter > 0 && p.Polls >= settleAfter {
		s.settle(p, model.PaymentSucceeded, "")
	}
	return *p, nil
}

// SetPaymentStatus forces a payment into status.
func (s *State) SetPaymentStatus(orderCode int64, status model.PaymentStatus, reason string) (order, error) {
	switch status {
	case model.PaymentPending, model.PaymentSucceeded, model.PaymentFailed, model.PaymentCanceled:
	default:
		return order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderCode]
	if !ok {
		return order{}, ErrPaymentNotFound
	}
	s.settle(p, status, reason)
	return *p, nil
}

func (s *State) Payment(orderCode int64) (order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderCode]
	if !ok {
		return order{}, false
	}
	return *p, true
}

// settle must be called with s.mu held. Terminal statuses are final, so a
// payment is credited at most once.
func (s *State) settle(p *order, status model.PaymentStatus, reason string) {
	if p.Status.Terminal() {
		return
	}
	p.Status = status
	p.FailureReason = reason
	if status != model.PaymentSucceeded {
		return
	}
	now := s.now().UTC()
	p.PaidAt = &now
	if a, ok := s.byID[p.AccountID]; ok {
		points := p.Amount / pointsPerUnit
		a.Wallet.Points += points
		a.Wallet.Balance = a.Wallet.Points
		a.Wallet.LifetimePoints += points
		a.History = append(a.History, fmt.Sprintf("Top-up %d (order %d): +%d points", p.Amount, p.OrderCode, points))
	}
}
