// Package bridge hands a session established by the hosting web application
// over to the broker.
//
// The web application and the relay share one page but no storage. The web
// application posts a login-sync message on the page bus addressed to its
// own origin; the relay, running in the page context with a channel
// identity of its own, checks the message type, origin and source window
// and re-emits it as a syncLogin envelope.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/atinyakov/keeperbridge/internal/pubsub"
	"github.com/google/uuid"
)

// AnyOrigin addresses a message to every listener regardless of origin.
const AnyOrigin = "*"

// Window is one browsing context on the page. Messages carry the ID of the
// window that posted them.
type Window struct {
	ID     string
	Origin string
}

// NewWindow returns a window with a fresh identity.
func NewWindow(origin string) *Window {
	return &Window{ID: uuid.NewString(), Origin: origin}
}

// PageMessage is one delivered page message.
type PageMessage struct {
	Data   json.RawMessage
	Origin string
	Source string
}

// Bus is the page-wide message channel. Every listener on the page sees
// every delivered message, whoever posted it.
type Bus struct {
	origin string
	hub    *pubsub.Hub[PageMessage]
}

// NewBus returns the bus of a document served from origin.
func NewBus(origin string) *Bus {
	return &Bus{origin: origin, hub: pubsub.New[PageMessage]()}
}

// Origin returns the document origin.
func (b *Bus) Origin() string {
	return b.origin
}

// Post delivers data from window from to all listeners when targetOrigin
// is AnyOrigin or matches the document origin. A mismatched target drops
// the message silently and reports false.
func (b *Bus) Post(from *Window, data any, targetOrigin string) (bool, error) {
	if targetOrigin != AnyOrigin && targetOrigin != b.origin {
		return false, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("encode page message: %w", err)
	}
	b.hub.Publish(PageMessage{Data: raw, Origin: from.Origin, Source: from.ID})
	return true, nil
}

// Listen registers fn for delivered messages.
func (b *Bus) Listen(fn func(PageMessage)) *pubsub.Subscription {
	return b.hub.Subscribe(fn)
}
