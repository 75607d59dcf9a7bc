package config

import (
	"errors"
	"flag"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL          string
	StorageURI      string
	ReturnURL       string
	CallbackAddress string
	PollInterval    time.Duration
	PollMaxAttempts int
	RequestTimeout  time.Duration
	LogLevel        string
	LogFile         string
}

var (
	ErrAPIURLEmpty        = errors.New("api_url is an empty string")
	ErrAPIURLInvalid      = errors.New("api_url is not an absolute url")
	ErrStorageURIEmpty    = errors.New("storage_uri is an empty string")
	ErrReturnURLInvalid   = errors.New("return_url is not an absolute url")
	ErrPollIntervalRange  = errors.New("poll_interval must be positive")
	ErrPollAttemptsRange  = errors.New("poll_max_attempts must be positive")
	ErrRequestTimeoutZero = errors.New("request_timeout must be positive")
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 25
)

func (cfg *Config) check() error {
	var errs []error

	if len(cfg.APIURL) == 0 {
		errs = append(errs, ErrAPIURLEmpty)
	} else if !isAbsoluteURL(cfg.APIURL) {
		errs = append(errs, ErrAPIURLInvalid)
	}
	if len(cfg.StorageURI) == 0 {
		errs = append(errs, ErrStorageURIEmpty)
	}
	if !isAbsoluteURL(cfg.ReturnURL) {
		errs = append(errs, ErrReturnURLInvalid)
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, ErrPollIntervalRange)
	}
	if cfg.PollMaxAttempts <= 0 {
		errs = append(errs, ErrPollAttemptsRange)
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, ErrRequestTimeoutZero)
	}
	return errors.Join(errs...)
}

// ParseFlags reads the process command line and environment.
func (cfg *Config) ParseFlags() error {
	return cfg.Parse(flag.CommandLine, os.Args[1:])
}

// Parse registers the console flags on fs, parses args and applies environment
// overrides. A .env file in the working directory is loaded when present.
func (cfg *Config) Parse(fs *flag.FlagSet, args []string) error {
	_ = godotenv.Load()

	fs.StringVar(&cfg.APIURL, "api", "http://localhost:8080", "Base URL of the backend API")
	fs.StringVar(&cfg.StorageURI, "storage", "file://"+defaultStorageDir(), "Durable client storage (file://dir, postgres://..., redis://...)")
	fs.StringVar(&cfg.ReturnURL, "return", "http://localhost:8089/wallet", "Return URL handed to the payment gateway")
	fs.StringVar(&cfg.CallbackAddress, "callback", "localhost:8089", "Address of the local payment return listener")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", DefaultPollInterval, "Delay between payment status checks")
	fs.IntVar(&cfg.PollMaxAttempts, "poll-attempts", DefaultPollMaxAttempts, "Payment status checks before giving up")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", 15*time.Second, "Timeout of a single API request")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Rotating log file pattern, e.g. logs/%Y-%m-%d.log")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if v := os.Getenv("API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("STORAGE_URI"); v != "" {
		cfg.StorageURI = v
	}
	if v := os.Getenv("RETURN_URL"); v != "" {
		cfg.ReturnURL = v
	}
	if v := os.Getenv("CALLBACK_ADDRESS"); v != "" {
		cfg.CallbackAddress = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("POLL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollMaxAttempts = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return cfg.check()
}

// APIConfig configures the local development backend.
type APIConfig struct {
	Address       string
	SecretKey     string
	TokenTTL      time.Duration
	LogLevel      string
	AdminEmail    string
	AdminPassword string
	SettleAfter   int // status polls before a payment settles; 0 waits for a manual status
}

var (
	ErrAddressEmpty   = errors.New("address is an empty string")
	ErrSecretKeyEmpty = errors.New("jwt_secret is an empty string")
)

func (cfg *APIConfig) ParseFlags() error {
	_ = godotenv.Load()

	flag.StringVar(&cfg.Address, "a", "localhost:8080", "Service address and port")
	flag.StringVar(&cfg.SecretKey, "s", "supersecretkey", "Secret used to sign access tokens")
	flag.DurationVar(&cfg.TokenTTL, "ttl", 24*time.Hour, "Access token lifetime")
	flag.StringVar(&cfg.LogLevel, "log-level", "debug", "Log level")
	flag.StringVar(&cfg.AdminEmail, "admin-email", "admin@reuse.local", "Seeded administrator email")
	flag.StringVar(&cfg.AdminPassword, "admin-password", "", "Seeded administrator password; empty skips seeding")
	flag.IntVar(&cfg.SettleAfter, "settle-after", 3, "Status polls before a payment succeeds; 0 settles manually")
	flag.Parse()

	if v := os.Getenv("RUN_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.AdminEmail = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}

	var errs []error
	if len(cfg.Address) == 0 {
		errs = append(errs, ErrAddressEmpty)
	}
	if len(cfg.SecretKey) == 0 {
		errs = append(errs, ErrSecretKeyEmpty)
	}
	return errors.Join(errs...)
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func defaultStorageDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/reuse-console"
	}
	return ".reuse-console"
}
