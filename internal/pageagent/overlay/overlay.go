// Package overlay implements the save-confirmation prompt shown after a
// login form was submitted. It is the only path from a capture candidate
// to a savePassword request, and it sends nothing without an explicit
// accept from the user.
package overlay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/pageagent/clock"
	"github.com/atinyakov/keeperbridge/internal/pageagent/detector"
	"go.uber.org/zap"
)

const (
	// DefaultToastTTL is how long a toast stays visible.
	DefaultToastTTL = 3 * time.Second
	// DefaultSaveTimeout bounds one savePassword round trip.
	DefaultSaveTimeout = 15 * time.Second

	savedMessage  = "Password saved to vault!"
	failedMessage = "Failed to save password"
)

// ErrNoPrompt is returned when there is no prompt to act on.
var ErrNoPrompt = errors.New("no save prompt is showing")

// Sender delivers an envelope to the broker and decodes its response.
type Sender interface {
	Send(ctx context.Context, env message.Envelope, out any) error
}

// Fields are the editable values of the prompt.
type Fields struct {
	Site     string
	Username string
	Password string
}

// Decision is the user's answer to a prompt.
type Decision struct {
	Save   bool
	Fields Fields
}

// ToastKind selects the toast style.
type ToastKind int

const (
	ToastSuccess ToastKind = iota
	ToastError
)

// Toast is a transient notification.
type Toast struct {
	Message string
	Kind    ToastKind
}

// Renderer draws the prompt and toasts. Prompt must not block; the user's
// answer is reported through respond, at most once.
type Renderer interface {
	Prompt(c detector.Candidate, respond func(Decision))
	Close()
	Toast(t Toast)
	ClearToast()
}

// State is the overlay state.
type State int

const (
	Hidden State = iota
	Prompting
	Saving
)

// Overlay owns the prompt lifecycle.
type Overlay struct {
	sender   Sender
	renderer Renderer
	clock    clock.Clock
	toastTTL time.Duration
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	state   State
	current detector.Candidate
	gen     uint64
	toast   clock.Timer
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *Overlay) { o.clock = c }
}

// WithToastTTL sets the toast lifetime.
func WithToastTTL(d time.Duration) Option {
	return func(o *Overlay) { o.toastTTL = d }
}

// WithSaveTimeout bounds the savePassword round trip.
func WithSaveTimeout(d time.Duration) Option {
	return func(o *Overlay) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Overlay) { o.log = l }
}

// New creates an overlay sending approved credentials through sender.
func New(sender Sender, renderer Renderer, opts ...Option) *Overlay {
	o := &Overlay{
		sender:   sender,
		renderer: renderer,
		clock:    clock.Real{},
		toastTTL: DefaultToastTTL,
		timeout:  DefaultSaveTimeout,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Show displays a prompt for c, replacing any prompt already showing.
func (o *Overlay) Show(c detector.Candidate) {
	o.mu.Lock()
	replaced := o.state == Prompting
	o.gen++
	gen := o.gen
	o.state, o.current = Prompting, c
	o.mu.Unlock()

	if replaced {
		o.renderer.Close()
	}
	o.renderer.Prompt(c, func(d Decision) { o.respond(gen, d) })
}

// State returns the current state.
func (o *Overlay) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Accept saves the showing prompt with the given, possibly edited, fields.
func (o *Overlay) Accept(f Fields) error {
	return o.act(Decision{Save: true, Fields: f})
}

// Dismiss discards the showing prompt without side effects.
func (o *Overlay) Dismiss() error {
	return o.act(Decision{})
}

func (o *Overlay) act(d Decision) error {
	o.mu.Lock()
	gen, state := o.gen, o.state
	o.mu.Unlock()
	if state != Prompting {
		return ErrNoPrompt
	}
	o.respond(gen, d)
	return nil
}

func (o *Overlay) respond(gen uint64, d Decision) {
	o.mu.Lock()
	if o.gen != gen || o.state != Prompting {
		o.mu.Unlock()
		return
	}
	c := o.current
	if !d.Save {
		o.state, o.current = Hidden, detector.Candidate{}
		o.mu.Unlock()
		o.log.Debug("save prompt dismissed", zap.String("site", c.Site))
		o.renderer.Close()
		return
	}
	o.state = Saving
	o.mu.Unlock()

	cred := models.Credential{
		Site:     d.Fields.Site,
		Username: d.Fields.Username,
		Password: d.Fields.Password,
		URL:      c.URL,
	}
	toast := o.save(cred)

	o.mu.Lock()
	current := o.gen == gen
	if current {
		o.state, o.current = Hidden, detector.Candidate{}
	}
	o.mu.Unlock()

	o.showToast(toast)
	if current {
		o.renderer.Close()
	}
}

func (o *Overlay) save(cred models.Credential) Toast {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	var out message.Success
	err := o.sender.Send(ctx, message.SavePassword(cred), &out)
	switch {
	case err == nil && out.Success:
		o.log.Info("credential saved", zap.String("site", cred.Site))
		return Toast{Message: savedMessage, Kind: ToastSuccess}
	case err == nil:
		return Toast{Message: failedMessage, Kind: ToastError}
	}

	o.log.Warn("save credential", zap.String("site", cred.Site), zap.Error(err))
	var msgErr *message.Error
	if errors.As(err, &msgErr) && msgErr.Message != "" {
		return Toast{Message: msgErr.Message, Kind: ToastError}
	}
	return Toast{Message: failedMessage, Kind: ToastError}
}

func (o *Overlay) showToast(t Toast) {
	o.mu.Lock()
	if o.toast != nil {
		o.toast.Stop()
	}
	var timer clock.Timer
	timer = o.clock.AfterFunc(o.toastTTL, func() {
		o.mu.Lock()
		live := o.toast == timer
		if live {
			o.toast = nil
		}
		o.mu.Unlock()
		if live {
			o.renderer.ClearToast()
		}
	})
	o.toast = timer
	o.mu.Unlock()

	o.renderer.Toast(t)
}
