// Package payment tops up the wallet through an external payment page and
// confirms the result by polling the payment status.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"reuse-console/internal/logging"
	"reuse-console/internal/model"
	"reuse-console/internal/navigation"
	"reuse-console/internal/notify"
	"reuse-console/internal/wallet"
)

var (
	ErrAmountNotAllowed = errors.New("amount is not one of the allowed top-up amounts")
	ErrLinkMissing      = errors.New("payment link not returned by server")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrPaymentCanceled  = errors.New("payment canceled")
	ErrPaymentTimedOut  = errors.New("payment confirmation timed out")
	ErrPollAborted      = errors.New("payment polling aborted")
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 25

	// MaxOrderCode is the largest integer a float64 holds exactly.
	MaxOrderCode int64 = 1<<53 - 1
)

// AllowedAmounts are the top-up amounts offered, in minor currency units.
var AllowedAmounts = []int64{10000, 20000, 50000, 100000, 200000, 500000}

type State int

const (
	Idle State = iota
	LinkRequested
	AwaitingRedirectConfirmation
	Polling
	Succeeded
	Failed
	Canceled
	TimedOut
)

var stateNames = [...]string{
	Idle:                         "idle",
	LinkRequested:                "link requested",
	AwaitingRedirectConfirmation: "awaiting redirect confirmation",
	Polling:                      "polling",
	Succeeded:                    "succeeded",
	Failed:                       "failed",
	Canceled:                     "canceled",
	TimedOut:                     "timed out",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports states a poll task ends in.
func (s State) Terminal() bool {
	return s >= Succeeded
}

// Client is the subset of the API client the poller calls.
type Client interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// WalletRefresher reloads the wallet read-model after a confirmed payment.
type WalletRefresher interface {
	Refresh(ctx context.Context) (wallet.Snapshot, error)
}

// NewOrderCode derives the order code from the wall clock in whole seconds so
// it stays within MaxOrderCode.
func NewOrderCode(now time.Time) int64 {
	code := now.Unix() % MaxOrderCode
	if code <= 0 {
		code += MaxOrderCode
	}
	return code
}

func AmountAllowed(amount int64) bool {
	return slices.Contains(AllowedAmounts, amount)
}

// ReturnURLs builds the URLs the payment page sends the browser back to.
func ReturnURLs(base string, orderCode, amount int64) (returnURL, cancelURL string) {
	return withQuery(base, "success", orderCode, amount), withQuery(base, "canceled", orderCode, amount)
}

func withQuery(base, flag string, orderCode, amount int64) string {
	u, err := url.Parse(base)
	if err != nil {
		u = &url.URL{Path: base}
	}
	q := u.Query()
	q.Set(flag, "true")
	q.Set("order", strconv.FormatInt(orderCode, 10))
	q.Set("amount", strconv.FormatInt(amount, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

type linkRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
}

type linkBody struct {
	PaymentLink      string `json:"paymentLink"`
	PaymentLinkUpper string `json:"PaymentLink"`
}

type linkResponse struct {
	linkBody
	Data *linkBody `json:"data"`
}

// link accepts the shapes different backend versions return.
func (r linkResponse) link() string {
	for _, b := range []*linkBody{&r.linkBody, r.Data} {
		if b == nil {
			continue
		}
		if b.PaymentLinkUpper != "" {
			return b.PaymentLinkUpper
		}
		if b.PaymentLink != "" {
			return b.PaymentLink
		}
	}
	return ""
}

type statusResponse struct {
	Status        string  `json:"status"`
	PaidAt        *string `json:"paidAt"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	FailureReason *string `json:"failureReason"`
}

type Poller struct {
	api         Client
	wallet      WalletRefresher
	returnBase  string
	nav         navigation.Navigator
	notifier    notify.Notifier
	interval    time.Duration
	maxAttempts int
	now         func() time.Time

	mu      sync.Mutex
	state   State
	attempt *model.PaymentAttempt
	task    *Task
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

func WithNavigator(nav navigation.Navigator) Option {
	return func(p *Poller) { p.nav = nav }
}

func WithNotifier(n notify.Notifier) Option {
	return func(p *Poller) { p.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a poller whose return URLs point at returnBase.
func NewPoller(api Client, refresher WalletRefresher, returnBase string, opts ...Option) *Poller {
	p := &Poller{
		api:         api,
		wallet:      refresher,
		returnBase:  returnBase,
		notifier:    notify.Discard{},
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempt returns the current payment attempt, if any.
func (p *Poller) Attempt() (model.PaymentAttempt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attempt == nil {
		return model.PaymentAttempt{}, false
	}
	return *p.attempt, true
}

// RequestLink asks the backend for a payment page for amount. A failure
// returns the poller to Idle and is not retried.
func (p *Poller) RequestLink(ctx context.Context, amount int64) (model.PaymentAttempt, error) {
	if !AmountAllowed(amount) {
		return model.PaymentAttempt{}, fmt.Errorf("%w: %d", ErrAmountNotAllowed, amount)
	}

	now := p.now()
	attempt := &model.PaymentAttempt{
		OrderCode: NewOrderCode(now),
		Amount:    amount,
		Status:    model.PaymentCreated,
		CreatedAt: now,
	}
	p.mu.Lock()
	p.state = LinkRequested
	p.attempt = attempt
	p.mu.Unlock()

	returnURL, cancelURL := ReturnURLs(p.returnBase, attempt.OrderCode, amount)
	req := linkRequest{
		OrderCode:   attempt.OrderCode,
		Amount:      amount,
		Description: "Top up " + strconv.FormatInt(attempt.OrderCode, 10),
		ReturnURL:   returnURL,
		CancelURL:   cancelURL,
	}

	var resp linkResponse
	err := p.api.Post(ctx, "payments/link", req, &resp)
	if err == nil && resp.link() == "" {
		err = ErrLinkMissing
	}
	if err != nil {
		logging.Logg.Warn("Failed to create payment link", "order", attempt.OrderCode, "error", err)
		p.mu.Lock()
		p.state = Idle
		p.attempt = nil
		p.mu.Unlock()
		p.notifier.Notify(notify.Notification{
			Level:       notify.Error,
			Title:       "Could not start payment",
			Description: err.Error(),
		})
		return model.PaymentAttempt{}, err
	}

	p.mu.Lock()
	attempt.Link = resp.link()
	p.state = AwaitingRedirectConfirmation
	out := *attempt
	p.mu.Unlock()

	logging.Logg.Info("Payment link created", "order", out.OrderCode, "amount", amount)
	return out, nil
}
