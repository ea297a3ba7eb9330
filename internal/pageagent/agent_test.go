package pageagent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/pageagent/clock"
	"github.com/atinyakov/keeperbridge/internal/pageagent/detector"
	"github.com/atinyakov/keeperbridge/internal/pageagent/dom"
	"github.com/atinyakov/keeperbridge/internal/pageagent/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginHTML = `<html><body>
<form data-vault-id="signin" action="/session">
  <input data-vault-id="email" type="text" name="email">
  <input data-vault-id="pw" type="password" name="password">
</form>
</body></html>`

const typedHTML = `<html><body>
<form data-vault-id="signin" action="/session">
  <input data-vault-id="email" type="text" name="email" value="a@b.com">
  <input data-vault-id="pw" type="password" name="password" value="Tr0ub4dor&amp;3">
</form>
</body></html>`

type captureSender struct {
	sent []message.Envelope
}

func (s *captureSender) Send(_ context.Context, env message.Envelope, out any) error {
	s.sent = append(s.sent, env)
	raw, _ := json.Marshal(message.OK(message.Success{Success: true}))
	return message.Decode(raw, out)
}

type promptRecorder struct {
	shown   []detector.Candidate
	respond func(overlay.Decision)
	toasts  []overlay.Toast
}

func (r *promptRecorder) Prompt(c detector.Candidate, respond func(overlay.Decision)) {
	r.shown = append(r.shown, c)
	r.respond = respond
}
func (r *promptRecorder) Close()                {}
func (r *promptRecorder) Toast(t overlay.Toast) { r.toasts = append(r.toasts, t) }
func (r *promptRecorder) ClearToast()           {}

func setup(t *testing.T) (*Agent, *clock.Fake, *promptRecorder, *captureSender) {
	t.Helper()
	c := clock.NewFake()
	sender := &captureSender{}
	view := &promptRecorder{}
	ov := overlay.New(sender, view, overlay.WithClock(c))
	det := detector.New(ov.Show, detector.WithClock(c))
	return New(det, nil), c, view, sender
}

func TestAgent_CaptureToSave(t *testing.T) {
	a, c, view, sender := setup(t)

	require.NoError(t, a.Load("https://www.example.com/login", loginHTML))
	require.NoError(t, a.Submit("signin", typedHTML))
	assert.Empty(t, view.shown, "prompt waits for the delay")

	c.Advance(detector.DefaultDelay)
	require.Len(t, view.shown, 1)
	assert.Equal(t, detector.Candidate{
		Site:     "example",
		Username: "a@b.com",
		Password: "Tr0ub4dor&3",
		URL:      "https://www.example.com/login",
	}, view.shown[0])

	view.respond(overlay.Decision{Save: true, Fields: overlay.Fields{
		Site: "example", Username: "a@b.com", Password: "Tr0ub4dor&3",
	}})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, message.ActionSavePassword, sender.sent[0].Action)
	require.Len(t, view.toasts, 1)
	assert.Equal(t, overlay.ToastSuccess, view.toasts[0].Kind)
}

func TestAgent_NavigationAfterSubmitStillPrompts(t *testing.T) {
	a, c, view, _ := setup(t)

	require.NoError(t, a.Load("https://www.example.com/login", loginHTML))
	require.NoError(t, a.Submit("signin", typedHTML))
	require.NoError(t, a.Load("https://www.example.com/home", `<html><body><h1>Hi</h1></body></html>`))

	c.Advance(time.Second)
	require.Len(t, view.shown, 1)
	assert.False(t, a.HasPasswordForms())
}

func TestAgent_DynamicFormViaSnapshot(t *testing.T) {
	a, c, view, _ := setup(t)

	require.NoError(t, a.Load("https://app.example.com/", `<html><body><div id="root"></div></body></html>`))
	assert.False(t, a.HasPasswordForms())

	require.NoError(t, a.Snapshot(typedHTML))
	assert.True(t, a.HasPasswordForms())

	require.NoError(t, a.Submit("signin", ""))
	c.Advance(detector.DefaultDelay)
	require.Len(t, view.shown, 1)
	assert.Equal(t, "app", view.shown[0].Site)
}

func TestAgent_Errors(t *testing.T) {
	a, _, _, _ := setup(t)
	assert.ErrorIs(t, a.Snapshot(loginHTML), ErrNoDocument)
	assert.ErrorIs(t, a.Submit("signin", ""), ErrNoDocument)

	require.NoError(t, a.Load("https://example.com/", loginHTML))
	assert.ErrorIs(t, a.Submit("missing", ""), dom.ErrDetached)

	a.Unload()
	assert.False(t, a.HasPasswordForms())
}

func TestAgent_Dispatch(t *testing.T) {
	a, _, _, _ := setup(t)
	ctx := context.Background()

	resp, err := a.Dispatch(ctx, message.New(message.ActionCheckLoginStatus)).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, message.OK(message.LoginStatus{HasPasswordForms: false}), resp)

	require.NoError(t, a.Load("https://example.com/", loginHTML))
	resp, err = a.Dispatch(ctx, message.New(message.ActionCheckLoginStatus)).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, message.OK(message.LoginStatus{HasPasswordForms: true}), resp)

	resp, err = a.Dispatch(ctx, message.New(message.ActionLogin)).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, message.CodeUnknownAction, resp.Code)
}
