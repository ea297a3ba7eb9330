package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/keeperbridge/internal/bridge"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const messageTimeout = 10 * time.Second

// Sink receives page events. It is implemented by pageagent.Agent.
type Sink interface {
	Load(rawURL, html string) error
	Snapshot(html string) error
	Submit(formID, html string) error
}

// MessageSink receives typed page messages. It is implemented by
// bridge.Relay.
type MessageSink interface {
	Window() *bridge.Window
	Handle(ctx context.Context, m bridge.PageMessage) error
}

// bindings adapts the exposed page functions to a Sink. Errors are logged
// and never surface in the page.
type bindings struct {
	sink     Sink
	messages MessageSink
	log      *zap.Logger
}

// topFrame wraps fn so that calls made from child frames are dropped. The
// agent holds one document, the top-level one; an iframe reporting its own
// load would replace it.
func (b *bindings) topFrame(name string, fn playwright.ExposedFunction) playwright.BindingCallFunction {
	return func(source *playwright.BindingSource, args ...any) any {
		if source != nil && source.Frame != nil && source.Frame.ParentFrame() != nil {
			b.log.Debug("child frame call ignored",
				zap.String("binding", name),
				zap.String("frame_url", source.Frame.URL()),
			)
			return nil
		}
		return fn(args...)
	}
}

func (b *bindings) load(args ...any) any {
	s, err := stringArgs(args, 2)
	if err != nil {
		b.log.Warn("load binding", zap.Error(err))
		return nil
	}
	if err := b.sink.Load(s[0], s[1]); err != nil {
		b.log.Warn("load page", zap.Error(err))
	}
	return nil
}

func (b *bindings) mutation(args ...any) any {
	s, err := stringArgs(args, 1)
	if err != nil {
		b.log.Warn("mutation binding", zap.Error(err))
		return nil
	}
	if err := b.sink.Snapshot(s[0]); err != nil {
		b.log.Debug("apply snapshot", zap.Error(err))
	}
	return nil
}

func (b *bindings) submit(args ...any) any {
	s, err := stringArgs(args, 2)
	if err != nil {
		b.log.Warn("submit binding", zap.Error(err))
		return nil
	}
	if err := b.sink.Submit(s[0], s[1]); err != nil {
		b.log.Debug("dispatch submit", zap.String("form", s[0]), zap.Error(err))
	}
	return nil
}

// message receives (data, origin, fromSelf). Messages posted by other
// windows get no source identity.
func (b *bindings) message(args ...any) any {
	if b.messages == nil {
		return nil
	}
	s, err := stringArgs(args, 2)
	if err != nil {
		b.log.Warn("message binding", zap.Error(err))
		return nil
	}
	m := bridge.PageMessage{Data: json.RawMessage(s[0]), Origin: s[1]}
	if len(args) > 2 {
		if self, ok := args[2].(bool); ok && self {
			m.Source = b.messages.Window().ID
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()
	switch err := b.messages.Handle(ctx, m); {
	case err == nil, errors.Is(err, bridge.ErrNotLoginSync):
	default:
		b.log.Warn("page message", zap.String("origin", m.Origin), zap.Error(err))
	}
	return nil
}

func stringArgs(args []any, n int) ([]string, error) {
	if len(args) < n {
		return nil, fmt.Errorf("want %d arguments, got %d", n, len(args))
	}
	out := make([]string, n)
	for i := range out {
		s, ok := args[i].(string)
		if !ok {
			return nil, fmt.Errorf("argument %d: want string, got %T", i, args[i])
		}
		out[i] = s
	}
	return out, nil
}
