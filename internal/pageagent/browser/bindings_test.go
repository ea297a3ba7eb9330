package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/atinyakov/keeperbridge/internal/bridge"
	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/pageagent"
	"github.com/atinyakov/keeperbridge/internal/pageagent/clock"
	"github.com/atinyakov/keeperbridge/internal/pageagent/detector"
	"github.com/atinyakov/keeperbridge/internal/pageagent/overlay"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockSink struct {
	LoadFunc     func(rawURL, html string) error
	SnapshotFunc func(html string) error
	SubmitFunc   func(formID, html string) error
}

func (m *mockSink) Load(rawURL, html string) error   { return m.LoadFunc(rawURL, html) }
func (m *mockSink) Snapshot(html string) error       { return m.SnapshotFunc(html) }
func (m *mockSink) Submit(formID, html string) error { return m.SubmitFunc(formID, html) }

func TestBindings_Forward(t *testing.T) {
	var got []string
	sink := &mockSink{
		LoadFunc:     func(u, h string) error { got = append(got, "load:"+u+":"+h); return nil },
		SnapshotFunc: func(h string) error { got = append(got, "snap:"+h); return nil },
		SubmitFunc:   func(id, h string) error { got = append(got, "submit:"+id+":"+h); return nil },
	}
	b := &bindings{sink: sink, log: zap.NewNop()}

	assert.Nil(t, b.load("https://example.com/", "<html></html>"))
	assert.Nil(t, b.mutation("<html>2</html>"))
	assert.Nil(t, b.submit("form-1", "<html>3</html>"))

	assert.Equal(t, []string{
		"load:https://example.com/:<html></html>",
		"snap:<html>2</html>",
		"submit:form-1:<html>3</html>",
	}, got)
}

func TestBindings_BadArgumentsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	called := false
	sink := &mockSink{
		LoadFunc:   func(string, string) error { called = true; return nil },
		SubmitFunc: func(string, string) error { called = true; return nil },
	}
	b := &bindings{sink: sink, log: zap.New(core)}

	b.load("only-one")
	b.submit(42, "<html></html>")

	assert.False(t, called)
	assert.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestBindings_SinkErrorsDoNotEscape(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := &mockSink{
		SubmitFunc: func(string, string) error { return errors.New("element is not attached to the document") },
	}
	b := &bindings{sink: sink, log: zap.New(core)}

	assert.Nil(t, b.submit("gone", ""))
	entries := logs.FilterMessage("dispatch submit").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "gone", entries[0].ContextMap()["form"])
	}
}

type mockMessages struct {
	win     *bridge.Window
	handled []bridge.PageMessage
	err     error
}

func (m *mockMessages) Window() *bridge.Window { return m.win }
func (m *mockMessages) Handle(_ context.Context, msg bridge.PageMessage) error {
	m.handled = append(m.handled, msg)
	return m.err
}

func TestBindings_Message(t *testing.T) {
	msgs := &mockMessages{win: bridge.NewWindow("http://localhost:5174")}
	b := &bindings{messages: msgs, log: zap.NewNop()}

	b.message(`{"type":"KEEPER_LOGIN_SYNC"}`, "http://localhost:5174", true)
	b.message(`{"type":"KEEPER_LOGIN_SYNC"}`, "http://localhost:5174", false)
	b.message(`{"type":"x"}`, "https://other.example")

	if assert.Len(t, msgs.handled, 3) {
		assert.Equal(t, msgs.win.ID, msgs.handled[0].Source)
		assert.Empty(t, msgs.handled[1].Source, "other windows carry no identity")
		assert.Equal(t, "https://other.example", msgs.handled[2].Origin)
		assert.JSONEq(t, `{"type":"x"}`, string(msgs.handled[2].Data))
	}
}

func TestBindings_MessageRejectionsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	msgs := &mockMessages{win: bridge.NewWindow("http://a"), err: bridge.ErrUntrustedSource}
	b := &bindings{messages: msgs, log: zap.New(core)}

	b.message(`{"type":"KEEPER_LOGIN_SYNC"}`, "http://b", true)
	assert.Equal(t, 1, logs.FilterMessage("page message").Len())

	msgs.err = bridge.ErrNotLoginSync
	b.message(`{"type":"other"}`, "http://a", true)
	assert.Equal(t, 1, logs.Len())
}

func TestBindings_MessageWithoutRelay(t *testing.T) {
	b := &bindings{log: zap.NewNop()}
	assert.Nil(t, b.message(`{"type":"x"}`, "http://a", true))
}

func TestInitScript_ReferencesBindings(t *testing.T) {
	for _, name := range []string{bindingLoad, bindingMutation, bindingSubmit, bindingMessage} {
		assert.True(t, strings.Contains(initScript, "window."+name+"("), name)
	}
	assert.Contains(t, initScript, "data-vault-id")
	assert.Contains(t, initScript, "if (window !== window.top) return;")
}

// fakeFrame implements only what the bindings look at.
type fakeFrame struct {
	playwright.Frame
	url    string
	parent playwright.Frame
}

func (f *fakeFrame) ParentFrame() playwright.Frame { return f.parent }
func (f *fakeFrame) URL() string                   { return f.url }

type nopSender struct{}

func (nopSender) Send(context.Context, message.Envelope, any) error { return nil }

type promptRecorder struct{ shown []detector.Candidate }

func (r *promptRecorder) Prompt(c detector.Candidate, _ func(overlay.Decision)) {
	r.shown = append(r.shown, c)
}
func (r *promptRecorder) Close()              {}
func (r *promptRecorder) Toast(overlay.Toast) {}
func (r *promptRecorder) ClearToast()         {}

const topLogin = `<html><body>
<form data-vault-id="signin">
  <input data-vault-id="email" type="email" name="email">
  <input data-vault-id="pw" type="password" name="password">
</form>
</body></html>`

const topTyped = `<html><body>
<form data-vault-id="signin">
  <input data-vault-id="email" type="email" name="email" value="ann@example.com">
  <input data-vault-id="pw" type="password" name="password" value="hunter2">
</form>
</body></html>`

const captchaFrame = `<html><body><div data-vault-id="anchor">I'm not a robot</div></body></html>`

func TestBindings_ChildFramesDoNotReplaceThePage(t *testing.T) {
	c := clock.NewFake()
	view := &promptRecorder{}
	ov := overlay.New(nopSender{}, view, overlay.WithClock(c))
	agent := pageagent.New(detector.New(ov.Show, detector.WithClock(c)), nil)

	core, logs := observer.New(zap.DebugLevel)
	b := &bindings{sink: agent, log: zap.New(core)}
	load := b.topFrame(bindingLoad, b.load)
	mutation := b.topFrame(bindingMutation, b.mutation)
	submit := b.topFrame(bindingSubmit, b.submit)

	top := &fakeFrame{url: "https://www.example.com/login"}
	child := &fakeFrame{url: "https://www.google.com/recaptcha/api2/anchor", parent: top}

	load(&playwright.BindingSource{Frame: top}, "https://www.example.com/login", topLogin)
	load(&playwright.BindingSource{Frame: child}, child.url, captchaFrame)
	mutation(&playwright.BindingSource{Frame: child}, captchaFrame)
	assert.True(t, agent.HasPasswordForms())
	assert.Equal(t, 2, logs.FilterMessage("child frame call ignored").Len())

	submit(&playwright.BindingSource{Frame: top}, "signin", topTyped)
	c.Advance(detector.DefaultDelay)
	require.Len(t, view.shown, 1)
	assert.Equal(t, "example", view.shown[0].Site)
	assert.Equal(t, "https://www.example.com/login", view.shown[0].URL)
	assert.Equal(t, "ann@example.com", view.shown[0].Username)
}
