package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reuse-console/internal/auth"
	"reuse-console/internal/config"
	"reuse-console/internal/logging"
	"reuse-console/internal/navigation"
	"reuse-console/internal/notify"
	"reuse-console/internal/packages"
	"reuse-console/internal/payment"
	"reuse-console/internal/prefs"
	"reuse-console/internal/store"
	"reuse-console/internal/transport"
	"reuse-console/internal/wallet"
)

const usage = `usage: console [flags] <command> [args]

commands:
  login           sign in with email and password
  google-login    sign in with a Google ID token
  register        create an account
  logout          sign out and clear local data
  whoami          show the signed-in account
  wallet          show wallet balance and history
  topup <amount>  top up the wallet through the payment page
  packages        list, show, create, status, delete packages; qr <id>...
  resend-confirm  send the email confirmation link again
  verify-email    confirm an email address (-user, -token)
  theme <light|dark>
  sidebar [open|closed|toggle]
`

type app struct {
	cfg      config.Config
	storage  store.Storage
	nav      *navigation.Router
	notifier notify.Notifier
	api      *transport.Client
	sessions *auth.Manager
	wallet   *wallet.Service
	poller   *payment.Poller
	ui       *prefs.UI
	tables   *prefs.Tables
	packages *packages.Service
}

// routes maps commands to the page they stand for, so the route guard and
// the 401 redirect see the same path a browser would.
var routes = map[string]string{
	"login":          "/login",
	"google-login":   "/login",
	"register":       "/register",
	"resend-confirm": "/check-email",
	"verify-email":   "/verify-email",
	"logout":         "/",
	"whoami":         "/profile",
	"wallet":         "/wallet",
	"topup":          "/wallet",
	"packages":       "/packages",
	"theme":          "/settings",
	"sidebar":        "/settings",
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}

	var cfg config.Config
	err := cfg.ParseFlags()

	output := "console"
	if cfg.LogFile != "" {
		output = "both"
	}
	logging.Logg = logging.NewLogger(cfg.LogLevel, "text", "json", output, cfg.LogFile)
	if logging.Logg == nil {
		fmt.Println("Failed to initialize logger")
		os.Exit(1)
	}
	if err != nil {
		logging.Logg.Error("Configuration error", "error", err)
		os.Exit(2)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	route, ok := routes[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, route)
	if err != nil {
		logging.Logg.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	defer a.storage.Close()

	if err := a.run(ctx, args[0], args[1:]); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg config.Config, route string) (*app, error) {
	storage, err := store.Open(ctx, cfg.StorageURI)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{
		cfg:      cfg,
		storage:  storage,
		nav:      navigation.NewRouter(route),
		notifier: notify.NewWriter(os.Stdout),
	}
	tokens := &auth.TokenHolder{}
	a.api = transport.New(cfg.APIURL, tokens,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithNavigator(a.nav),
		transport.WithNotifier(a.notifier),
	)
	a.wallet = wallet.NewService(a.api, nil)
	a.sessions = auth.NewManager(a.api, storage, tokens,
		auth.WithNavigator(a.nav),
		auth.WithNotifier(a.notifier),
		auth.OnSignOut(a.wallet.Model().Reset),
	)
	a.poller = payment.NewPoller(a.api, a.wallet, cfg.ReturnURL,
		payment.WithInterval(cfg.PollInterval),
		payment.WithMaxAttempts(cfg.PollMaxAttempts),
		payment.WithNavigator(a.nav),
		payment.WithNotifier(a.notifier),
	)
	a.ui = prefs.NewUI(storage)
	a.tables = prefs.NewTables(storage)
	a.packages = packages.NewService(a.api)

	if err := a.sessions.Rehydrate(ctx); err != nil {
		logging.Logg.Warn("Session not restored", "error", err)
	}
	if err := a.ui.Load(ctx); err != nil {
		logging.Logg.Warn("Preferences not restored", "error", err)
	}
	if err := a.tables.Load(ctx); err != nil {
		logging.Logg.Warn("Table preferences not restored", "error", err)
	}
	return a, nil
}
