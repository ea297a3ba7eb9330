package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/atinyakov/keeperbridge/internal/bridge"
	"github.com/atinyakov/keeperbridge/internal/gateway"
	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves the handful of endpoints the web app calls and
// records the headers it saw.
type fakeBackend struct {
	mu       sync.Mutex
	headers  map[string]http.Header
	status   map[string]int
	entries  []models.VaultEntry
	nextID   int
	loggedIn bool
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{headers: map[string]http.Header{}, status: map[string]int{}}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) fail(route string, status int) {
	fb.mu.Lock()
	fb.status[route] = status
	fb.mu.Unlock()
}

func (fb *fakeBackend) header(route string) http.Header {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.headers[route]
}

func (fb *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.headers[route] = r.Header.Clone()

	if status, ok := fb.status[route]; ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"detail":"forced failure"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch route {
	case "POST /api/auth/login":
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MasterPassword != "correct horse" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
			return
		}
		fb.loggedIn = true
		_ = json.NewEncoder(w).Encode(models.TokenResponse{
			AccessToken: "tok-1",
			TokenType:   "bearer",
			User:        &models.User{ID: "u1", Email: req.Email, Username: "ann"},
		})
	case "POST /api/auth/logout":
		fb.loggedIn = false
		w.WriteHeader(http.StatusNoContent)
	case "GET /api/auth/me":
		_ = json.NewEncoder(w).Encode(models.User{ID: "u1", Email: "a@b.com", Username: "ann"})
	case "GET /api/vault/list":
		_ = json.NewEncoder(w).Encode(fb.entries)
	case "POST /api/vault/add":
		var in models.VaultEntryInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		fb.nextID++
		e := models.VaultEntry{ID: "e" + string(rune('0'+fb.nextID)), Title: in.Title}
		fb.entries = append(fb.entries, e)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(e)
	default:
		http.NotFound(w, r)
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []message.Envelope
}

func (s *recordingSender) Send(_ context.Context, env message.Envelope, out any) error {
	s.mu.Lock()
	s.sent = append(s.sent, env)
	s.mu.Unlock()
	raw, _ := json.Marshal(message.OK(message.Success{Success: true}))
	return message.Decode(raw, out)
}

type harness struct {
	app      *App
	local    *LocalStorage
	sess     *SessionStorage
	sender   *recordingSender
	navigate []string
}

func newHarness(t *testing.T, backendURL string) *harness {
	t.Helper()
	const origin = "http://localhost:5174"
	local, err := NewLocalStorage(filepath.Join(t.TempDir(), "local.json"))
	require.NoError(t, err)

	bus := bridge.NewBus(origin)
	win := bridge.NewWindow(origin)
	sender := &recordingSender{}
	sub := bridge.NewRelay(win, []string{origin}, sender, nil).Attach(bus)
	t.Cleanup(sub.Close)

	h := &harness{local: local, sess: NewSessionStorage(), sender: sender}
	h.app = New(Options{
		BackendURL: backendURL,
		Local:      local,
		Session:    h.sess,
		Announcer:  bridge.NewAnnouncer(bus, win),
		Navigate:   func(p string) { h.navigate = append(h.navigate, p) },
	})
	return h
}

func TestLogin_StoresAndAnnounces(t *testing.T) {
	_, srv := newFakeBackend(t)
	h := newHarness(t, srv.URL)

	var seen []*models.User
	sub := h.app.Auth.Subscribe(func(u *models.User) { seen = append(seen, u) })
	defer sub.Close()

	resp, err := h.app.Auth.Login(context.Background(), "a@b.com", "correct horse", nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.AccessToken)

	token, _ := h.local.Get(session.KeyAccessToken)
	secret, _ := h.sess.Get(session.KeyMasterPassword)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "correct horse", secret)
	_, inLocal := h.local.Get(session.KeyMasterPassword)
	assert.False(t, inLocal, "secret never reaches local storage")

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, message.ActionSyncLogin, h.sender.sent[0].Action)
	assert.Equal(t, "tok-1", h.sender.sent[0].AccessToken)
	assert.Equal(t, "correct horse", h.sender.sent[0].MasterPassword)

	require.Len(t, seen, 1)
	assert.Equal(t, "ann", seen[0].Username)
	assert.True(t, h.app.Auth.IsAuthenticated())
}

func TestLogin_Failure(t *testing.T) {
	_, srv := newFakeBackend(t)
	h := newHarness(t, srv.URL)

	_, err := h.app.Auth.Login(context.Background(), "a@b.com", "wrong", nil)
	var reqErr *gateway.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "Invalid credentials", reqErr.Message)
	assert.Empty(t, h.sender.sent)
	assert.False(t, h.app.Creds.HasToken())
}

func TestSecretHeaderOnlyOnSensitivePaths(t *testing.T) {
	fb, srv := newFakeBackend(t)
	h := newHarness(t, srv.URL)
	ctx := context.Background()

	_, err := h.app.Auth.Login(ctx, "a@b.com", "correct horse", nil)
	require.NoError(t, err)
	_, err = h.app.Auth.Refresh(ctx)
	require.NoError(t, err)
	_, err = h.app.Vault.Fetch(ctx)
	require.NoError(t, err)

	me := fb.header("GET /api/auth/me")
	assert.Equal(t, "Bearer tok-1", me.Get(gateway.HeaderAuthorization))
	assert.Empty(t, me.Get(gateway.HeaderMasterPassword))

	list := fb.header("GET /api/vault/list")
	assert.Equal(t, "Bearer tok-1", list.Get(gateway.HeaderAuthorization))
	assert.Equal(t, "correct horse", list.Get(gateway.HeaderMasterPassword))
}

func TestUnauthorizedClearsAndNavigates(t *testing.T) {
	fb, srv := newFakeBackend(t)
	h := newHarness(t, srv.URL)
	ctx := context.Background()

	_, err := h.app.Auth.Login(ctx, "a@b.com", "correct horse", nil)
	require.NoError(t, err)
	_, err = h.app.Vault.Add(ctx, models.VaultEntryInput{Title: "github"})
	require.NoError(t, err)

	fb.fail("GET /api/vault/list", http.StatusUnauthorized)
	_, err = h.app.Vault.Fetch(ctx)
	assert.ErrorIs(t, err, gateway.ErrAuthExpired)

	assert.Equal(t, []string{LoginPath}, h.navigate)
	assert.False(t, h.app.Creds.HasToken())
	_, ok := h.sess.Get(session.KeyMasterPassword)
	assert.False(t, ok)
	assert.False(t, h.app.Auth.IsAuthenticated())
	assert.Empty(t, h.app.Vault.Entries())
}

func TestLogoutClearsEvenWhenBackendFails(t *testing.T) {
	fb, srv := newFakeBackend(t)
	h := newHarness(t, srv.URL)
	ctx := context.Background()

	_, err := h.app.Auth.Login(ctx, "a@b.com", "correct horse", nil)
	require.NoError(t, err)

	fb.fail("POST /api/auth/logout", http.StatusInternalServerError)
	err = h.app.Auth.Logout(ctx)
	assert.Error(t, err)
	assert.False(t, h.app.Creds.HasToken())
	assert.False(t, h.app.Auth.IsAuthenticated())
}

func TestLogout_NoContent(t *testing.T) {
	_, srv := newFakeBackend(t)
	h := newHarness(t, srv.URL)
	ctx := context.Background()

	_, err := h.app.Auth.Login(ctx, "a@b.com", "correct horse", nil)
	require.NoError(t, err)
	require.NoError(t, h.app.Auth.Logout(ctx))
	assert.Empty(t, h.sess.Keys())
}

func TestRefresh_WithoutToken(t *testing.T) {
	fb, srv := newFakeBackend(t)
	h := newHarness(t, srv.URL)

	user, err := h.app.Auth.Refresh(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Nil(t, fb.header("GET /api/auth/me"), "backend not contacted")
}

func TestLocalStoragePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")
	ls, err := NewLocalStorage(path)
	require.NoError(t, err)
	require.NoError(t, ls.Set(session.KeyAccessToken, "tok"))

	reopened, err := NewLocalStorage(path)
	require.NoError(t, err)
	v, ok := reopened.Get(session.KeyAccessToken)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	require.NoError(t, reopened.Remove(session.KeyAccessToken))
	require.NoError(t, ls.Load())
	_, ok = ls.Get(session.KeyAccessToken)
	assert.False(t, ok)
}
