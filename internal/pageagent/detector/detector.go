// Package detector finds password-bearing forms in the page, wires exactly
// one submit listener per form, and turns a qualifying submission into a
// capture candidate.
//
// The detector holds at most one candidate. A submission moves it from
// Idle to Pending; after a short delay the candidate is handed to the
// confirmation prompt and the detector returns to Idle. A newer submission
// replaces a pending candidate instead of queueing behind it.
package detector

import (
	"sync"
	"time"

	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/pageagent/clock"
	"github.com/atinyakov/keeperbridge/internal/pageagent/dom"
	"github.com/atinyakov/keeperbridge/internal/pubsub"
	"go.uber.org/zap"
)

// DefaultDelay is how long a candidate stays pending before it is offered.
const DefaultDelay = 500 * time.Millisecond

// Candidate is a tentative credential extracted from a submitted form.
type Candidate struct {
	Site     string
	Username string
	Password string
	URL      string
}

// Credential converts c into the savePassword payload.
func (c Candidate) Credential() models.Credential {
	return models.Credential{Site: c.Site, URL: c.URL, Username: c.Username, Password: c.Password}
}

// State is the pending-candidate state.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// Detector watches one document at a time.
type Detector struct {
	offer func(Candidate)
	clock clock.Clock
	delay time.Duration
	log   *zap.Logger

	forms *FormSet

	mu       sync.Mutex
	doc      *dom.Document
	observer *pubsub.Subscription
	state    State
	pending  Candidate
	timer    clock.Timer
	gen      uint64
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// WithDelay sets the pending delay.
func WithDelay(delay time.Duration) Option {
	return func(d *Detector) { d.delay = delay }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// New creates a detector that hands every due candidate to offer.
func New(offer func(Candidate), opts ...Option) *Detector {
	d := &Detector{
		offer: offer,
		clock: clock.Real{},
		delay: DefaultDelay,
		log:   zap.NewNop(),
		forms: NewFormSet(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attach starts watching doc, replacing any previously watched document.
// Existing forms are wired immediately; later additions are picked up by
// the mutation watch.
func (d *Detector) Attach(doc *dom.Document) {
	if d.document() == doc {
		d.Scan()
		return
	}
	d.Detach()

	d.mu.Lock()
	d.doc = doc
	d.mu.Unlock()

	doc.OnUnload(d.forms.Clear)
	sub := doc.Observe(d.HandleMutation)

	d.mu.Lock()
	d.observer = sub
	d.mu.Unlock()

	d.Scan()
}

// Detach stops watching the current document. A pending candidate is kept.
func (d *Detector) Detach() {
	d.mu.Lock()
	sub := d.observer
	d.doc, d.observer = nil, nil
	d.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	d.forms.Clear()
}

// Scan wires every not yet processed form that holds a password field and
// returns how many were wired. Forms already in the set are left alone, so
// repeated scans never attach a second listener.
func (d *Detector) Scan() int {
	doc := d.document()
	if doc == nil {
		return 0
	}
	wired := 0
	for _, field := range doc.PasswordFields() {
		form, ok := field.Closest("form")
		if !ok {
			continue
		}
		id := form.ID()
		if !d.forms.Add(id) {
			continue
		}
		doc.AddSubmitListener(form, d.handleSubmit)
		doc.OnDetach(form, func() { d.forms.Forget(id) })
		wired++
	}
	if wired > 0 {
		d.log.Debug("wired password forms", zap.Int("count", wired), zap.Int("total", d.forms.Len()))
	}
	return wired
}

// HandleMutation rescans when the mutation added any element.
func (d *Detector) HandleMutation(m dom.Mutation) {
	if len(m.Added) == 0 {
		return
	}
	d.Scan()
}

// HasPasswordForms reports whether the watched page has any password field.
func (d *Detector) HasPasswordForms() bool {
	doc := d.document()
	return doc != nil && len(doc.PasswordFields()) > 0
}

// Processed reports how many forms are currently wired.
func (d *Detector) Processed() int {
	return d.forms.Len()
}

// State returns the current state and, when pending, the candidate.
func (d *Detector) State() (State, Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.pending
}

// Cancel discards a pending candidate.
func (d *Detector) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Detector) handleSubmit(form dom.Element) {
	doc := d.document()
	if doc == nil {
		return
	}
	password, ok := form.Query(dom.Input("password"))
	if !ok || password.Value() == "" {
		return
	}
	identity, ok := FindIdentityField(doc, password)
	if !ok || identity.Value() == "" {
		d.log.Debug("submission without identity field", zap.String("form", string(form.ID())))
		return
	}

	u := doc.URL()
	d.hold(Candidate{
		Site:     SiteName(u.Hostname()),
		Username: identity.Value(),
		Password: password.Value(),
		URL:      u.String(),
	})
}

func (d *Detector) hold(c Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reset()
	d.gen++
	gen := d.gen
	d.state, d.pending = Pending, c
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
	d.log.Debug("candidate pending", zap.String("site", c.Site), zap.Duration("delay", d.delay))
}

func (d *Detector) fire(gen uint64) {
	d.mu.Lock()
	if d.state != Pending || d.gen != gen {
		d.mu.Unlock()
		return
	}
	c := d.pending
	d.state, d.pending, d.timer = Idle, Candidate{}, nil
	d.mu.Unlock()

	d.offer(c)
}

// reset returns to Idle. Callers hold d.mu.
func (d *Detector) reset() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.state, d.pending, d.timer = Idle, Candidate{}, nil
}

func (d *Detector) document() *dom.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc
}
