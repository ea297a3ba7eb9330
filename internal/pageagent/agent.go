// Package pageagent runs inside the visited page: it mirrors the page
// document, watches it for login forms and offers to save submitted
// credentials. It also answers checkLoginStatus queries from the control
// panel.
package pageagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/pageagent/detector"
	"github.com/atinyakov/keeperbridge/internal/pageagent/dom"
	"go.uber.org/zap"
)

// ErrNoDocument is returned when a page event arrives before any load.
var ErrNoDocument = errors.New("no document loaded")

// Agent serializes page events onto one document, the way a page's event
// loop would.
type Agent struct {
	det *detector.Detector
	log *zap.Logger

	mu  sync.Mutex
	doc *dom.Document
}

// New creates an agent feeding page events to det.
func New(det *detector.Detector, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{det: det, log: log}
}

// Load replaces the current document with a freshly loaded page.
func (a *Agent) Load(rawURL, html string) error {
	doc, err := dom.ParseString(rawURL, html)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doc != nil {
		a.doc.Unload()
	}
	a.doc = doc
	a.det.Attach(doc)
	a.log.Debug("page loaded",
		zap.String("host", doc.URL().Hostname()),
		zap.Int("password_forms", a.det.Processed()),
	)
	return nil
}

// Snapshot applies a new snapshot of the current page.
func (a *Agent) Snapshot(html string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doc == nil {
		return ErrNoDocument
	}
	return a.doc.Replace(strings.NewReader(html))
}

// Submit applies the snapshot taken at submission time, then dispatches the
// submit event on the form with the given identifier.
func (a *Agent) Submit(formID, html string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doc == nil {
		return ErrNoDocument
	}
	if html != "" {
		if err := a.doc.Replace(strings.NewReader(html)); err != nil {
			return err
		}
	}
	form, ok := a.doc.ElementByID(dom.NodeID(formID))
	if !ok {
		return fmt.Errorf("submit form %q: %w", formID, dom.ErrDetached)
	}
	return a.doc.Submit(form)
}

// Unload tears the current document down.
func (a *Agent) Unload() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doc != nil {
		a.doc.Unload()
		a.doc = nil
	}
}

// HasPasswordForms reports whether the current page has password fields.
func (a *Agent) HasPasswordForms() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc != nil && a.det.HasPasswordForms()
}

// Dispatch answers the queries a page agent serves. Everything else is an
// unknown action here; session actions belong to the broker.
func (a *Agent) Dispatch(_ context.Context, env message.Envelope) *message.Future {
	if env.Action != message.ActionCheckLoginStatus {
		return message.Resolved(message.Fail(message.CodeUnknownAction, message.ErrUnknownAction.Error()))
	}
	return message.Resolved(message.OK(message.LoginStatus{HasPasswordForms: a.HasPasswordForms()}))
}
