package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/pubsub"
	"go.uber.org/zap"
)

// LoginSyncType marks a session handoff message.
const LoginSyncType = "KEEPER_LOGIN_SYNC"

const defaultRelayTimeout = 10 * time.Second

var (
	// ErrNotLoginSync is returned for page messages of any other type.
	ErrNotLoginSync = errors.New("not a login sync message")
	// ErrUntrustedSource is returned when the origin is not trusted or the
	// message was posted by another window.
	ErrUntrustedSource = errors.New("login sync from untrusted source")
	// ErrIncomplete is returned when the token or the secret is missing.
	ErrIncomplete = errors.New("login sync without access token or master password")
)

// LoginSync is the handoff payload posted by the web application.
type LoginSync struct {
	Type           string `json:"type"`
	AccessToken    string `json:"access_token"`
	MasterPassword string `json:"master_password"`
}

// Announcer posts login-sync messages on behalf of the web application.
type Announcer struct {
	bus *Bus
	win *Window
}

// NewAnnouncer returns an announcer posting from win.
func NewAnnouncer(bus *Bus, win *Window) *Announcer {
	return &Announcer{bus: bus, win: win}
}

// Announce posts the session to the window's own origin, never to AnyOrigin.
func (a *Announcer) Announce(accessToken, masterPassword string) error {
	_, err := a.bus.Post(a.win, LoginSync{
		Type:           LoginSyncType,
		AccessToken:    accessToken,
		MasterPassword: masterPassword,
	}, a.win.Origin)
	return err
}

// Sender delivers an envelope to the broker.
type Sender interface {
	Send(ctx context.Context, env message.Envelope, out any) error
}

// Relay forwards validated login-sync messages to the broker.
type Relay struct {
	win     *Window
	trusted []string
	sender  Sender
	log     *zap.Logger
	timeout time.Duration
}

// NewRelay returns a relay living in win that accepts messages from the
// trusted origins only.
func NewRelay(win *Window, trusted []string, sender Sender, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		win:     win,
		trusted: slices.Clone(trusted),
		sender:  sender,
		log:     log,
		timeout: defaultRelayTimeout,
	}
}

// Window returns the window the relay lives in.
func (r *Relay) Window() *Window {
	return r.win
}

// Handle validates m and forwards it as a syncLogin envelope.
func (r *Relay) Handle(ctx context.Context, m PageMessage) error {
	var sync LoginSync
	if err := json.Unmarshal(m.Data, &sync); err != nil || sync.Type != LoginSyncType {
		return ErrNotLoginSync
	}
	if m.Source != r.win.ID || !slices.Contains(r.trusted, m.Origin) {
		return fmt.Errorf("%w: origin %q", ErrUntrustedSource, m.Origin)
	}
	if sync.AccessToken == "" || sync.MasterPassword == "" {
		return ErrIncomplete
	}

	var out message.Success
	if err := r.sender.Send(ctx, message.SyncLogin(sync.AccessToken, sync.MasterPassword), &out); err != nil {
		return fmt.Errorf("relay login sync: %w", err)
	}
	r.log.Info("session handed off to broker", zap.String("origin", m.Origin))
	return nil
}

// Attach relays every message delivered on bus until the subscription is
// closed.
func (r *Relay) Attach(bus *Bus) *pubsub.Subscription {
	return bus.Listen(func(m PageMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		switch err := r.Handle(ctx, m); {
		case err == nil:
		case errors.Is(err, ErrNotLoginSync):
		case errors.Is(err, ErrUntrustedSource), errors.Is(err, ErrIncomplete):
			r.log.Warn("login sync rejected", zap.Error(err))
		default:
			r.log.Error("login sync failed", zap.Error(err))
		}
	})
}
