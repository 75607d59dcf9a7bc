package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reuse-console/internal/logging"
	"reuse-console/internal/model"
	"reuse-console/internal/notify"
	"reuse-console/internal/transport"
)

// Result is the outcome of a finished poll task.
type Result struct {
	State   State
	Attempt model.PaymentAttempt
	Err     error
}

// Task is a running confirmation poll. It ends on a terminal state or when
// cancelled; Cancel is how the owner tears it down.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Cancel stops the task and its pending timer. It does not wait.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its result.
func (t *Task) Wait() Result {
	<-t.done
	return t.result
}

func finishedTask(r Result) *Task {
	t := &Task{cancel: func() {}, done: make(chan struct{}), result: r}
	close(t.done)
	return t
}

// HandleReturn inspects the URL the payment page sent the browser back to.
// It returns nil when u is not a payment return. A canceled payment finishes
// immediately without polling; a successful one starts a poll task. Any task
// still running from an earlier return is cancelled first.
func (p *Poller) HandleReturn(ctx context.Context, u *url.URL) *Task {
	q := u.Query()
	amount, _ := strconv.ParseInt(q.Get("amount"), 10, 64)
	order, orderErr := strconv.ParseInt(q.Get("order"), 10, 64)

	switch {
	case q.Get("canceled") == "true":
		p.stopTask()
		p.mu.Lock()
		p.attempt = &model.PaymentAttempt{OrderCode: order, Amount: amount, Status: model.PaymentCanceled, CreatedAt: p.now()}
		p.mu.Unlock()
		return finishedTask(p.finish(u, Canceled, nil))

	case q.Get("success") == "true":
		if orderErr != nil || order <= 0 {
			logging.Logg.Warn("Payment return without a valid order code", "order", q.Get("order"))
			return nil
		}
	default:
		return nil
	}

	p.stopTask()
	attempt := &model.PaymentAttempt{OrderCode: order, Amount: amount, Status: model.PaymentPending, CreatedAt: p.now()}

	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	p.mu.Lock()
	p.state = Polling
	p.attempt = attempt
	p.task = t
	p.mu.Unlock()

	go func() {
		defer close(t.done)
		defer cancel()
		t.result = p.poll(ctx, u, order)
	}()
	return t
}

func (p *Poller) stopTask() {
	p.mu.Lock()
	t := p.task
	p.task = nil
	p.mu.Unlock()
	if t != nil {
		t.Cancel()
		<-t.done
	}
}

// Stop cancels the running poll task, if any, and waits for it to exit.
// Owners call it on teardown.
func (p *Poller) Stop() {
	p.stopTask()
}

func (p *Poller) poll(ctx context.Context, u *url.URL, order int64) Result {
	query := url.Values{"orderCode": {strconv.FormatInt(order, 10)}}

	for {
		if err := ctx.Err(); err != nil {
			return p.abort(err)
		}

		var resp statusResponse
		err := p.api.Get(ctx, "payments/status", query, &resp)
		if err != nil && ctx.Err() != nil {
			return p.abort(ctx.Err())
		}
		made := p.countAttempt()

		// The transport has already redirected on 401/403; polling signed
		// out would only fight that navigation.
		if code := transport.StatusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return p.abort(err)
		}

		if err == nil {
			switch {
			case strings.EqualFold(resp.Status, string(model.PaymentSucceeded)):
				p.setStatus(model.PaymentSucceeded)
				p.refreshWallet(ctx)
				return p.finish(u, Succeeded, nil)
			case strings.EqualFold(resp.Status, string(model.PaymentFailed)):
				p.setStatus(model.PaymentFailed)
				return p.finish(u, Failed, failureReason(resp))
			case strings.EqualFold(resp.Status, string(model.PaymentCanceled)):
				p.setStatus(model.PaymentCanceled)
				return p.finish(u, Canceled, nil)
			}
		}

		if err != nil {
			logging.Logg.Debug("Payment status check failed", "order", order, "attempt", made, "error", err)
		} else {
			logging.Logg.Debug("Payment not settled yet", "order", order, "attempt", made, "status", resp.Status)
		}
		if made >= p.maxAttempts {
			p.setStatus(model.PaymentTimedOut)
			logging.Logg.Warn("All status attempts used", "order", order, "attempts", made)
			return p.finish(u, TimedOut, nil)
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return p.abort(ctx.Err())
		case <-timer.C:
		}
	}
}

// countAttempt records one status call and returns the number made so far.
func (p *Poller) countAttempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attempt == nil {
		return 0
	}
	p.attempt.AttemptsMade++
	return p.attempt.AttemptsMade
}

func (p *Poller) setStatus(status model.PaymentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attempt != nil {
		p.attempt.Status = status
	}
}

func failureReason(resp statusResponse) error {
	if resp.FailureReason != nil && *resp.FailureReason != "" {
		return errors.New(*resp.FailureReason)
	}
	return nil
}

func (p *Poller) refreshWallet(ctx context.Context) {
	if p.wallet == nil {
		return
	}
	if _, err := p.wallet.Refresh(ctx); err != nil {
		logging.Logg.Warn("Wallet refresh after payment failed", "error", err)
	}
}

func (p *Poller) abort(cause error) Result {
	p.mu.Lock()
	p.state = Idle
	attempt := model.PaymentAttempt{}
	if p.attempt != nil {
		attempt = *p.attempt
	}
	p.mu.Unlock()
	logging.Logg.Debug("Payment polling stopped", "order", attempt.OrderCode, "cause", cause)
	return Result{State: Idle, Attempt: attempt, Err: fmt.Errorf("%w: %w", ErrPollAborted, cause)}
}

// finish moves to a terminal state: it strips the payment parameters from
// the route and notifies the user exactly once.
func (p *Poller) finish(u *url.URL, s State, reason error) Result {
	p.mu.Lock()
	p.state = s
	attempt := model.PaymentAttempt{}
	if p.attempt != nil {
		attempt = *p.attempt
	}
	p.mu.Unlock()

	if p.nav != nil {
		path := u.Path
		if path == "" {
			path = "/"
		}
		p.nav.Replace(path)
	}

	n, err := outcome(s, attempt, reason)
	p.notifier.Notify(n)
	logging.Logg.Info("Payment finished", "order", attempt.OrderCode, "state", s.String(), "attempts", attempt.AttemptsMade)
	return Result{State: s, Attempt: attempt, Err: err}
}

func outcome(s State, a model.PaymentAttempt, reason error) (notify.Notification, error) {
	order := strconv.FormatInt(a.OrderCode, 10)
	switch s {
	case Succeeded:
		return notify.Notification{
			Level:       notify.Success,
			Title:       "Payment successful",
			Description: "Your wallet has been topped up.",
		}, nil
	case Failed:
		desc := "The payment was declined."
		if reason != nil {
			desc = reason.Error()
		}
		return notify.Notification{Level: notify.Error, Title: "Payment failed", Description: desc}, ErrPaymentFailed
	case Canceled:
		return notify.Notification{
			Level:       notify.Info,
			Title:       "Payment canceled",
			Description: "No money was taken.",
		}, ErrPaymentCanceled
	default:
		return notify.Notification{
			Level:       notify.Error,
			Title:       "Payment not confirmed",
			Description: "We could not confirm payment " + order + ". Please contact support.",
		}, ErrPaymentTimedOut
	}
}
