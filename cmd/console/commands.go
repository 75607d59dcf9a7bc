package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi"
	"golang.org/x/term"

	"reuse-console/internal/auth"
	"reuse-console/internal/httpserver"
	"reuse-console/internal/logging"
	"reuse-console/internal/middleware"
	"reuse-console/internal/notify"
	"reuse-console/internal/payment"
	"reuse-console/internal/prefs"
)

// errSilent marks failures already reported to the user by a notification.
var errSilent = errors.New("reported")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "google-login":
		return a.googleLogin(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		a.sessions.Logout(ctx, auth.LogoutOptions{Redirect: "/login", CallAPI: true})
		fmt.Println("Signed out.")
		return nil
	case "resend-confirm":
		return a.resendConfirm(ctx, args)
	case "verify-email":
		return a.verifyEmail(ctx, args)
	case "theme":
		return a.theme(ctx, args)
	case "sidebar":
		return a.sidebar(ctx, args)
	}

	if err := a.requireSession(ctx); err != nil {
		return err
	}
	switch cmd {
	case "whoami":
		return a.whoami(ctx)
	case "wallet":
		return a.showWallet(ctx)
	case "topup":
		return a.topUp(ctx, args)
	case "packages":
		return a.packagesCmd(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// requireSession applies the route guard to the command's page.
func (a *app) requireSession(ctx context.Context) error {
	d := auth.NewGuard(a.sessions).Decide(ctx, a.nav.Current())
	switch d.Action {
	case auth.Allow:
		return nil
	case auth.Redirect:
		return fmt.Errorf("not signed in, run: console login (then continue at %s)", d.Target)
	default:
		return errors.New("session not ready")
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		*email = prompt("Email: ")
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	if err := a.sessions.Login(ctx, auth.Credentials{Email: *email, Password: password}); err != nil {
		return errSilent
	}
	return a.whoami(ctx)
}

func (a *app) googleLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("google-login", flag.ContinueOnError)
	idToken := fs.String("id-token", os.Getenv("GOOGLE_ID_TOKEN"), "Google ID token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *idToken == "" {
		return errors.New("an ID token is required (-id-token or GOOGLE_ID_TOKEN)")
	}
	if err := a.sessions.LoginGoogle(ctx, *idToken); err != nil {
		return errSilent
	}
	return a.whoami(ctx)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var req auth.RegisterRequest
	fs.StringVar(&req.Email, "email", "", "Account email")
	fs.StringVar(&req.Phone, "phone", "", "Phone number")
	fs.StringVar(&req.UserName, "username", "", "User name")
	fs.StringVar(&req.FullName, "name", "", "Full name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.Email == "" {
		req.Email = prompt("Email: ")
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	req.Password = password
	if err := a.sessions.Register(ctx, req); err != nil {
		return errSilent
	}
	if err := a.sessions.SendConfirmationEmail(ctx, req.Email); err != nil {
		logging.Logg.Warn("Confirmation email not sent", "error", err)
		return nil
	}
	fmt.Println("Check your inbox to confirm your email address.")
	return nil
}

func (a *app) resendConfirm(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resend-confirm", flag.ContinueOnError)
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		if u := a.sessions.Snapshot().User; u != nil {
			*email = u.Email
		} else {
			*email = prompt("Email: ")
		}
	}
	if err := a.sessions.SendConfirmationEmail(ctx, *email); err != nil {
		return err
	}
	fmt.Println("Confirmation email sent.")
	return nil
}

func (a *app) verifyEmail(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify-email", flag.ContinueOnError)
	userID := fs.String("user", "", "User id from the confirmation link")
	token := fs.String("token", "", "Token from the confirmation link")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *token == "" {
		return errors.New("both -user and -token are required")
	}
	if err := a.sessions.VerifyEmail(ctx, *userID, *token); err != nil {
		return err
	}
	fmt.Println("Email confirmed.")
	return nil
}

func (a *app) theme(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println(a.ui.State().Theme)
		return nil
	}
	return a.ui.SetTheme(ctx, prefs.Theme(args[0]))
}

func (a *app) sidebar(ctx context.Context, args []string) error {
	var err error
	switch {
	case len(args) == 0:
	case args[0] == "open":
		err = a.ui.SetSidebarOpen(ctx, true)
	case args[0] == "closed":
		err = a.ui.SetSidebarOpen(ctx, false)
	case args[0] == "toggle":
		err = a.ui.ToggleSidebar(ctx)
	default:
		return errors.New("usage: sidebar [open|closed|toggle]")
	}
	if err != nil {
		return err
	}
	if a.ui.State().SidebarOpen {
		fmt.Println("open")
	} else {
		fmt.Println("closed")
	}
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	s := a.sessions.Snapshot()
	if s.Degraded() {
		if err := a.sessions.RefreshProfile(ctx); err != nil {
			fmt.Println("Signed in (profile unavailable).")
			return nil
		}
		s = a.sessions.Snapshot()
	}
	if s.User == nil {
		fmt.Println("Not signed in.")
		return nil
	}
	confirmed := "unconfirmed"
	if s.User.EmailConfirmed {
		confirmed = "confirmed"
	}
	fmt.Printf("%s <%s> role=%s email=%s\n", s.User.DisplayName, s.User.Email, s.User.Role, confirmed)
	return nil
}

func (a *app) showWallet(ctx context.Context) error {
	snap, err := a.wallet.Refresh(ctx)
	if err != nil {
		a.notifier.Notify(notify.Notification{
			Level:       notify.Error,
			Title:       "Failed to load wallet information",
			Description: err.Error(),
		})
		return errSilent
	}
	w := snap.Wallet
	fmt.Printf("Balance:        %d points\n", w.Points)
	fmt.Printf("Lifetime:       %d points\n", w.LifetimePoints)
	fmt.Printf("Returns:        %d packages\n", w.TotalReturns)
	fmt.Printf("CO2 saved:      %gg\n", w.CO2Saved)
	if len(snap.History) > 0 {
		fmt.Println("History:")
		for _, h := range snap.History {
			fmt.Println("  -", h.Description)
		}
	}
	return nil
}

// topUp requests a payment link and listens on the return URL until the
// payment page sends the browser back, then waits for confirmation.
func (a *app) topUp(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: topup <amount>, one of %v", payment.AllowedAmounts)
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[0])
	}

	tasks := make(chan *payment.Task, 1)
	listener := httpserver.New(a.cfg.CallbackAddress, returnHandler(ctx, a.poller, tasks))
	errc := listener.Start()
	defer listener.Shutdown(context.Background())
	defer a.poller.Stop()

	attempt, err := a.poller.RequestLink(ctx, amount)
	if err != nil {
		return errSilent
	}
	fmt.Printf("Open this link to pay order %d:\n  %s\n", attempt.OrderCode, attempt.Link)

	var task *payment.Task
	select {
	case task = <-tasks:
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("return listener: %w", err)
		}
		return errors.New("return listener stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-task.Done():
	case <-ctx.Done():
		task.Cancel()
		task.Wait()
		return ctx.Err()
	}
	res := task.Wait()
	if !res.State.Terminal() {
		return fmt.Errorf("payment confirmation interrupted: %w", res.Err)
	}
	if res.Err != nil {
		return errSilent
	}
	return a.showWallet(ctx)
}

const returnPage = "Payment received by the console. You can close this window."

// returnHandler hands the first payment return to the waiting top-up. Later
// hits, such as a reload of the return page, get the same page without
// touching the poller, so the running task keeps its owner.
func returnHandler(ctx context.Context, poller *payment.Poller, tasks chan<- *payment.Task) http.Handler {
	var (
		mu      sync.Mutex
		claimed bool
	)
	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware(logging.Logg))
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if claimed {
			logging.Logg.Debug("Payment return already handled", "uri", req.URL.RequestURI())
			fmt.Fprintln(w, returnPage)
			return
		}
		task := poller.HandleReturn(ctx, req.URL)
		if task == nil {
			http.NotFound(w, req)
			return
		}
		claimed = true
		tasks <- task
		fmt.Fprintln(w, returnPage)
	})
	return r
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) string {
	fmt.Print(label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}

func readPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(""), nil
	}
	fmt.Print(label)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
