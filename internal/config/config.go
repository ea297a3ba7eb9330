// Package config provides functionality for managing configuration options
// for the broker, the page agent and the control panel using command-line
// flags, environment variables and an optional JSON or YAML file.
//
// Precedence, lowest first: defaults, config file, flags given on the
// command line, environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds the configuration values shared by all binaries. Each
// binary reads the subset it needs.
type Options struct {
	// Addr is the broker's listening address (ip:port).
	Addr string `json:"addr" yaml:"addr"`
	// BackendURL is the base URL of the vault REST backend.
	BackendURL string `json:"backend_url" yaml:"backend_url"`
	// Store selects the session repository: "file" or "postgres".
	Store string `json:"store" yaml:"store"`
	// StoreFile is the JSON file used by the file store.
	StoreFile string `json:"store_file" yaml:"store_file"`
	// DatabaseDSN holds the database connection string for the postgres store.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`
	// Profile names the session row in the postgres store.
	Profile string `json:"profile" yaml:"profile"`
	// CertDir holds ca.crt and the per-context certificate pairs.
	CertDir string `json:"cert_dir" yaml:"cert_dir"`
	// Context is the certificate name a client presents on the channel.
	Context string `json:"context" yaml:"context"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
	// SensitiveScopes are glob patterns of paths that receive the master secret.
	SensitiveScopes List `json:"sensitive_scopes" yaml:"sensitive_scopes"`
	// SecretMode is "plaintext" or "handle".
	SecretMode string `json:"secret_mode" yaml:"secret_mode"`
	// RequestTimeout bounds backend requests and broker handlers.
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	// CleanInterval is how often the stored token's expiry is checked.
	CleanInterval Duration `json:"clean_interval" yaml:"clean_interval"`
	// AllowedContexts are the certificate names accepted by the broker.
	AllowedContexts List `json:"allowed_contexts" yaml:"allowed_contexts"`

	// BrokerURL is where clients reach the broker.
	BrokerURL string `json:"broker_url" yaml:"broker_url"`
	// AgentAddr is where the page agent answers checkLoginStatus.
	AgentAddr string `json:"agent_addr" yaml:"agent_addr"`
	// StartURL is the page the agent opens first.
	StartURL string `json:"start_url" yaml:"start_url"`
	// Headless runs the agent's browser without a window.
	Headless bool `json:"headless" yaml:"headless"`
	// InstallBrowser downloads the browser driver on start.
	InstallBrowser bool `json:"install_browser" yaml:"install_browser"`
	// PromptDelay is the wait between a submission and the save prompt.
	PromptDelay Duration `json:"prompt_delay" yaml:"prompt_delay"`
	// ToastTTL is how long save toasts stay visible.
	ToastTTL Duration `json:"toast_ttl" yaml:"toast_ttl"`
	// TrustedOrigins are the web application origins the bridge relays from.
	TrustedOrigins List `json:"trusted_origins" yaml:"trusted_origins"`
	// WebLoginURL is where the control panel sends users who need MFA.
	WebLoginURL string `json:"web_login_url" yaml:"web_login_url"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
	// Args are the positional arguments left after the flags.
	Args []string `json:"-" yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Options {
	return &Options{
		Addr:            "localhost:8443",
		BackendURL:      "http://localhost:8000",
		Store:           "file",
		StoreFile:       "session.json",
		Profile:         "default",
		CertDir:         "certs",
		LogLevel:        "info",
		SensitiveScopes: List{"/api/vault*", "/api/analytics*"},
		SecretMode:      "plaintext",
		RequestTimeout:  Duration{30 * time.Second},
		CleanInterval:   Duration{time.Hour},
		AllowedContexts: List{"page-agent", "control-panel", "bridge"},
		BrokerURL:       "https://localhost:8443",
		AgentAddr:       "localhost:8444",
		Headless:        false,
		PromptDelay:     Duration{500 * time.Millisecond},
		ToastTTL:        Duration{3 * time.Second},
		TrustedOrigins:  List{"http://localhost:5174"},
		WebLoginURL:     "http://localhost:5174/login",
		Config:          "config.json",
	}
}

// env maps environment variables onto fields.
var env = []struct {
	name string
	set  func(o *Options, v string) error
}{
	{"BROKER_ADDRESS", func(o *Options, v string) error { o.Addr = v; return nil }},
	{"BACKEND_URL", func(o *Options, v string) error { o.BackendURL = v; return nil }},
	{"SESSION_STORE", func(o *Options, v string) error { o.Store = v; return nil }},
	{"DATABASE_DSN", func(o *Options, v string) error { o.DatabaseDSN = v; return nil }},
	{"CERT_DIR", func(o *Options, v string) error { o.CertDir = v; return nil }},
	{"CHANNEL_CONTEXT", func(o *Options, v string) error { o.Context = v; return nil }},
	{"LOG_LEVEL", func(o *Options, v string) error { o.LogLevel = v; return nil }},
	{"SECRET_MODE", func(o *Options, v string) error { o.SecretMode = v; return nil }},
	{"BROKER_URL", func(o *Options, v string) error { o.BrokerURL = v; return nil }},
	{"AGENT_ADDRESS", func(o *Options, v string) error { o.AgentAddr = v; return nil }},
	{"TRUSTED_ORIGINS", func(o *Options, v string) error { return o.TrustedOrigins.Set(v) }},
	{"WEB_LOGIN_URL", func(o *Options, v string) error { o.WebLoginURL = v; return nil }},
}

// register binds the flags of o on fs.
func register(fs *flag.FlagSet, o *Options) {
	fs.StringVar(&o.Addr, "a", o.Addr, "broker listen address (ip:port)")
	fs.StringVar(&o.BackendURL, "b", o.BackendURL, "backend base URL")
	fs.StringVar(&o.Store, "store", o.Store, "session store: file | postgres")
	fs.StringVar(&o.StoreFile, "store-file", o.StoreFile, "session file for the file store")
	fs.StringVar(&o.DatabaseDSN, "d", o.DatabaseDSN, "db address")
	fs.StringVar(&o.Profile, "profile", o.Profile, "session profile name")
	fs.StringVar(&o.CertDir, "certs", o.CertDir, "certificate directory")
	fs.StringVar(&o.Context, "context", o.Context, "certificate name presented to the broker")
	fs.StringVar(&o.LogLevel, "l", o.LogLevel, "log level")
	fs.Var(&o.SensitiveScopes, "scopes", "comma separated sensitive path patterns")
	fs.StringVar(&o.SecretMode, "secret-mode", o.SecretMode, "secret persistence: plaintext | handle")
	fs.Var(&o.RequestTimeout, "timeout", "backend request timeout")
	fs.Var(&o.CleanInterval, "expiry-check", "how often an expired session is cleared, 0 disables")
	fs.Var(&o.AllowedContexts, "allow", "comma separated certificate names accepted by the broker")
	fs.StringVar(&o.BrokerURL, "broker", o.BrokerURL, "broker URL")
	fs.StringVar(&o.AgentAddr, "agent", o.AgentAddr, "page agent listen address")
	fs.StringVar(&o.StartURL, "url", o.StartURL, "page to open")
	fs.BoolVar(&o.Headless, "headless", o.Headless, "run the browser headless")
	fs.BoolVar(&o.InstallBrowser, "install", o.InstallBrowser, "install the browser driver first")
	fs.Var(&o.PromptDelay, "prompt-delay", "delay before the save prompt")
	fs.Var(&o.ToastTTL, "toast-ttl", "toast lifetime")
	fs.Var(&o.TrustedOrigins, "origins", "comma separated trusted web application origins")
	fs.StringVar(&o.WebLoginURL, "web-login", o.WebLoginURL, "web application login URL")
	fs.StringVar(&o.Config, "config", o.Config, "path to config file")
	fs.StringVar(&o.Config, "c", o.Config, "path to config file (shorthand)")
}

// Load builds the options from args and the environment.
func Load(name string, args []string, getenv func(string) string) (*Options, error) {
	o := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	register(fs, o)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.Args = fs.Args()

	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

	if configPath := getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}
	if o.Config != "" {
		if _, err := os.Stat(o.Config); err == nil {
			path := o.Config
			if err := loadFile(path, o, getenv); err != nil {
				return nil, err
			}
			o.Config = path
			for name, v := range explicit {
				if err := fs.Set(name, v); err != nil {
					return nil, fmt.Errorf("reapply flag -%s: %w", name, err)
				}
			}
		}
	}

	for _, e := range env {
		if v := getenv(e.name); v != "" {
			if err := e.set(o, v); err != nil {
				return nil, fmt.Errorf("%s: %w", e.name, err)
			}
		}
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It exits the process on invalid configuration.
func Parse() *Options {
	o, err := Load(filepath.Base(os.Args[0]), os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("invalid configuration: %v", err)
	}
	return o
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// loadFile decodes path into o. Files ending in .yaml or .yml are YAML with
// ${VAR} expansion; anything else is JSON.
func loadFile(path string, o *Options, getenv func(string) string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		expanded := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
			return getenv(envPattern.FindStringSubmatch(match)[1])
		})
		if err := yaml.Unmarshal([]byte(expanded), o); err != nil {
			return fmt.Errorf("error while parsing config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, o); err != nil {
			return fmt.Errorf("error while parsing config file: %w", err)
		}
	}
	return nil
}

// Validate checks the options for consistency.
func (o *Options) Validate() error {
	switch o.Store {
	case "file":
		if o.StoreFile == "" {
			return errors.New("store_file is required for the file store")
		}
	case "postgres":
		if o.DatabaseDSN == "" {
			return errors.New("database_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", o.Store)
	}
	switch o.SecretMode {
	case "plaintext", "handle":
	default:
		return fmt.Errorf("unknown secret_mode %q", o.SecretMode)
	}
	if o.PromptDelay.Duration < 0 || o.ToastTTL.Duration < 0 || o.RequestTimeout.Duration < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
