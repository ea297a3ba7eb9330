// Package service provides the broker's session business logic,
// delegating backend calls to a Backend and persistence to a SessionStore.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrIncompleteSession is returned when a handoff lacks either field.
var ErrIncompleteSession = errors.New("access_token and master_password are both required")

// ErrMissingToken is returned when the backend accepted a login but sent no token.
var ErrMissingToken = errors.New("login response carried no access token")

// Backend defines the backend operations required by the service.
type Backend interface {
	// Login exchanges credentials for a token. mfaCode may be nil.
	Login(ctx context.Context, email, masterPassword string, mfaCode *string) (*models.TokenResponse, error)
	// Me returns the user the stored token belongs to.
	Me(ctx context.Context) (*models.User, error)
	// AddEntry stores a vault entry.
	AddEntry(ctx context.Context, in models.VaultEntryInput) (*models.VaultEntry, error)
}

// SessionStore defines the session operations required by the service.
type SessionStore interface {
	Load(ctx context.Context) (session.Record, error)
	Put(ctx context.Context, r session.Record, reason session.Reason) error
	Clear(ctx context.Context, reason session.Reason) error
	ClearIf(ctx context.Context, reason session.Reason, pred func(session.Record) bool) (bool, error)
}

// Service implements the broker actions that touch the session record.
type Service struct {
	// backend performs the outbound calls.
	backend Backend
	// sessions owns the session record.
	sessions SessionStore
	log      *zap.Logger
	now      func() time.Time
}

// NewService constructs a Service. log may be nil.
func NewService(backend Backend, sessions SessionStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{backend: backend, sessions: sessions, log: log, now: time.Now}
}

// Login authenticates with the backend and, on success, persists the token
// together with the master password. It returns the user the backend reported.
func (s *Service) Login(ctx context.Context, email, password string, mfaCode *string) (*models.User, error) {
	tok, err := s.backend.Login(ctx, email, password, mfaCode)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, ErrMissingToken
	}
	rec := session.Record{AccessToken: tok.AccessToken, MasterPassword: password}
	if err := s.sessions.Put(ctx, rec, session.ReasonLogin); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return tok.User, nil
}

// Logout clears the session record. The backend is not contacted.
func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.Clear(ctx, session.ReasonLogout)
}

// CheckAuth reports whether the stored session is still valid. It never
// fails: every error degrades to logged out.
func (s *Service) CheckAuth(ctx context.Context) message.AuthStatus {
	rec, err := s.sessions.Load(ctx)
	if err != nil {
		s.log.Warn("check auth: load session", zap.Error(err))
		return message.AuthStatus{}
	}
	if !rec.Authenticated() {
		return message.AuthStatus{}
	}
	if s.tokenExpired(rec.AccessToken) {
		s.log.Info("check auth: token expired locally")
		if _, err := s.ExpireStale(ctx); err != nil {
			s.log.Error("check auth: clear expired session", zap.Error(err))
		}
		return message.AuthStatus{}
	}

	user, err := s.backend.Me(ctx)
	if err != nil {
		s.log.Info("check auth: backend rejected session", zap.Error(err))
		return message.AuthStatus{}
	}
	return message.AuthStatus{IsLoggedIn: true, User: user}
}

// tokenExpired inspects the exp claim without verifying the signature; the
// backend remains the authority. Tokens that do not parse are left to it.
func (s *Service) tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(s.now())
}

// SavePassword stores a captured credential in the vault.
func (s *Service) SavePassword(ctx context.Context, cred models.Credential) error {
	if _, err := s.backend.AddEntry(ctx, models.EntryFromCredential(cred)); err != nil {
		return err
	}
	s.log.Info("credential saved", zap.String("site", cred.Site))
	return nil
}

// SyncLogin overwrites the session record with a handoff from the web
// application. Last write wins.
func (s *Service) SyncLogin(ctx context.Context, accessToken, masterPassword string) error {
	if accessToken == "" || masterPassword == "" {
		return ErrIncompleteSession
	}
	rec := session.Record{AccessToken: accessToken, MasterPassword: masterPassword}
	if err := s.sessions.Put(ctx, rec, session.ReasonSync); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
