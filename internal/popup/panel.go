// Package popup is the control panel: a small surface that shows whether
// the broker holds a session, signs in and out through it, and follows
// session changes.
package popup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/session"
	"github.com/fatih/color"
)

// MFARedirectDelay is how long the MFA notice shows before the website
// login is opened.
const MFARedirectDelay = 500 * time.Millisecond

// Sender delivers one envelope and decodes its response.
type Sender interface {
	Send(ctx context.Context, env message.Envelope, out any) error
}

// Broker is the privileged channel as seen by the panel.
type Broker interface {
	Sender
	Events(ctx context.Context, fn func(session.Event)) error
}

// Panel renders the control panel to out.
type Panel struct {
	broker Broker
	// agent answers checkLoginStatus for the current page; may be nil.
	agent       Sender
	out         io.Writer
	webLoginURL string
	open        func(url string) error
	sleep       func(time.Duration)

	info   *color.Color
	ok     *color.Color
	notice *color.Color
	fail   *color.Color
}

// Option configures a Panel.
type Option func(*Panel)

// WithAgent enables the page status line.
func WithAgent(agent Sender) Option {
	return func(p *Panel) { p.agent = agent }
}

// WithOpener sets how the website login page is opened.
func WithOpener(open func(url string) error) Option {
	return func(p *Panel) { p.open = open }
}

// WithSleep replaces time.Sleep for the MFA redirect delay.
func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Panel) { p.sleep = sleep }
}

// New creates a panel talking to broker.
func New(broker Broker, out io.Writer, webLoginURL string, opts ...Option) *Panel {
	p := &Panel{
		broker:      broker,
		out:         out,
		webLoginURL: webLoginURL,
		open:        func(string) error { return nil },
		sleep:       time.Sleep,
		info:        color.New(color.FgCyan),
		ok:          color.New(color.FgGreen),
		notice:      color.New(color.FgYellow),
		fail:        color.New(color.FgRed),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status prints the signed-in user, or the login prompt, and the page
// status when an agent is configured. It reports whether a user is signed
// in.
func (p *Panel) Status(ctx context.Context) (bool, error) {
	var st message.AuthStatus
	if err := p.broker.Send(ctx, message.New(message.ActionCheckAuth), &st); err != nil {
		return false, fmt.Errorf("check auth: %w", err)
	}
	if st.IsLoggedIn {
		p.showUser(st.User)
	} else {
		p.notice.Fprintln(p.out, "Not logged in. Run `vaultctl login` to sign in.")
	}

	if p.agent != nil {
		var ls message.LoginStatus
		if err := p.agent.Send(ctx, message.New(message.ActionCheckLoginStatus), &ls); err != nil {
			p.fail.Fprintf(p.out, "Page agent unavailable: %v\n", err)
		} else if ls.HasPasswordForms {
			p.info.Fprintln(p.out, "This page has a login form.")
		} else {
			fmt.Fprintln(p.out, "No login form on this page.")
		}
	}
	return st.IsLoggedIn, nil
}

// Login signs in through the broker. When the account needs a second
// factor the website login is opened instead, since the panel cannot
// collect the code. Failures are shown inline and returned.
func (p *Panel) Login(ctx context.Context, email, password string) error {
	var res message.LoginResult
	err := p.broker.Send(ctx, message.Login(email, password, ""), &res)
	if err == nil && !res.Success {
		err = errors.New("Login failed")
	}
	if err != nil {
		var msgErr *message.Error
		if errors.As(err, &msgErr) && msgErr.Code == message.CodeMFARequired {
			p.notice.Fprintln(p.out, "MFA required. Opening website login...")
			p.sleep(MFARedirectDelay)
			if oerr := p.open(p.webLoginURL); oerr != nil {
				p.fail.Fprintf(p.out, "Open %s to finish signing in.\n", p.webLoginURL)
			}
			return err
		}
		p.fail.Fprintln(p.out, err.Error())
		return err
	}
	p.showUser(res.User)
	return nil
}

// Logout clears the broker session.
func (p *Panel) Logout(ctx context.Context) error {
	var res message.Success
	if err := p.broker.Send(ctx, message.New(message.ActionLogout), &res); err != nil {
		p.fail.Fprintln(p.out, err.Error())
		return err
	}
	p.ok.Fprintln(p.out, "Logged out.")
	return nil
}

// Watch prints session changes until ctx ends.
func (p *Panel) Watch(ctx context.Context) error {
	p.info.Fprintln(p.out, "Watching session changes (Ctrl+C to stop)...")
	return p.broker.Events(ctx, func(e session.Event) {
		line := fmt.Sprintf("%s  %-7s", time.Now().Format("15:04:05"), e.Reason)
		if e.Authenticated {
			p.ok.Fprintln(p.out, line+" signed in")
		} else {
			p.notice.Fprintln(p.out, line+" signed out")
		}
	})
}

func (p *Panel) showUser(u *models.User) {
	if u == nil {
		p.ok.Fprintln(p.out, "Logged in.")
		return
	}
	name := u.Username
	if name == "" {
		name = "User"
	}
	p.ok.Fprintf(p.out, "[%s] %s\n", Avatar(u), name)
	if u.Email != "" {
		fmt.Fprintln(p.out, "    "+u.Email)
	}
}

// Avatar is the user's initial: the first letter of the username, else of
// the email, else "U".
func Avatar(u *models.User) string {
	for _, s := range []string{u.Username, u.Email} {
		if r, _ := utf8.DecodeRuneInString(s); r != utf8.RuneError {
			return strings.ToUpper(string(r))
		}
	}
	return "U"
}
