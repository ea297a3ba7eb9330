// Package webapp is the hosting web application's side of the system: its
// own backend client, the browser-like storages it keeps the session in,
// and the auth and vault stores its views subscribe to.
//
// The access token lives in local storage and the master password in
// session storage. After a login the application announces the session
// through the bridge so the broker can adopt it.
package webapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/atinyakov/keeperbridge/internal/gateway"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/session"
	"go.uber.org/zap"
)

// LoginPath is where the application navigates when the session expires.
const LoginPath = "/login"

// Credentials reads the session from the two storages and clears both when
// the backend rejects it.
type Credentials struct {
	Local   Storage
	Session Storage
}

func (c *Credentials) Credentials(context.Context) (session.Record, error) {
	token, _ := c.Local.Get(session.KeyAccessToken)
	secret, _ := c.Session.Get(session.KeyMasterPassword)
	return session.Record{AccessToken: token, MasterPassword: secret}, nil
}

// Store writes a fresh session.
func (c *Credentials) Store(r session.Record) error {
	if err := c.Local.Set(session.KeyAccessToken, r.AccessToken); err != nil {
		return err
	}
	return c.Session.Set(session.KeyMasterPassword, r.MasterPassword)
}

// Expire removes both keys.
func (c *Credentials) Expire(context.Context) error {
	return errors.Join(
		c.Local.Remove(session.KeyAccessToken),
		c.Session.Remove(session.KeyMasterPassword),
	)
}

// HasToken reports whether an access token is stored.
func (c *Credentials) HasToken() bool {
	token, _ := c.Local.Get(session.KeyAccessToken)
	return token != ""
}

// Options configures an App.
type Options struct {
	BackendURL string
	Local      Storage
	Session    Storage
	// Announcer hands new sessions to the broker; nil disables the handoff.
	Announcer Announcer
	// Navigate is called with LoginPath when the session expires.
	Navigate   func(path string)
	HTTPClient *http.Client
	Scope      *gateway.Scope
	Log        *zap.Logger
}

// App wires the application's client and stores.
type App struct {
	API   *gateway.Client
	Creds *Credentials
	Auth  *AuthStore
	Vault *VaultStore
}

// New builds an App. Expiry clears the storages, resets both stores and
// navigates to the login page.
func New(o Options) *App {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	creds := &Credentials{Local: o.Local, Session: o.Session}
	app := &App{Creds: creds}

	opts := []gateway.Option{
		gateway.WithLogger(log.Named("api")),
		gateway.WithExpiredHook(func() {
			app.Auth.reset()
			app.Vault.reset()
			if o.Navigate != nil {
				o.Navigate(LoginPath)
			}
		}),
	}
	if o.HTTPClient != nil {
		opts = append(opts, gateway.WithHTTPClient(o.HTTPClient))
	}
	if o.Scope != nil {
		opts = append(opts, gateway.WithScope(o.Scope))
	}
	app.API = gateway.NewClient(o.BackendURL, creds, opts...)
	app.Auth = NewAuthStore(app.API, creds, o.Announcer, log.Named("auth"))
	app.Vault = NewVaultStore(app.API)

	app.Auth.Subscribe(func(u *models.User) {
		if u == nil {
			app.Vault.reset()
		}
	})
	return app
}
