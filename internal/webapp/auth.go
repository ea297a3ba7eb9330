package webapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/keeperbridge/internal/gateway"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/pubsub"
	"github.com/atinyakov/keeperbridge/internal/session"
	"go.uber.org/zap"
)

// AuthAPI is the part of the backend the auth store uses.
type AuthAPI interface {
	Login(ctx context.Context, email, masterPassword string, mfaCode *string) (*models.TokenResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
	Register(ctx context.Context, in models.RegisterRequest) (*models.User, error)
}

// Announcer hands a freshly established session to the broker.
type Announcer interface {
	Announce(accessToken, masterPassword string) error
}

// AuthStore holds the signed-in user and notifies subscribers when it
// changes. A nil user means signed out.
type AuthStore struct {
	api       AuthAPI
	creds     *Credentials
	announcer Announcer
	log       *zap.Logger

	mu    sync.Mutex
	user  *models.User
	users *pubsub.Hub[*models.User]
}

// NewAuthStore creates a signed-out store.
func NewAuthStore(api AuthAPI, creds *Credentials, announcer Announcer, log *zap.Logger) *AuthStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthStore{
		api:       api,
		creds:     creds,
		announcer: announcer,
		log:       log,
		users:     pubsub.New[*models.User](),
	}
}

// Login authenticates, stores the session and announces it. A failed
// announcement is logged; the local login still stands.
func (s *AuthStore) Login(ctx context.Context, email, masterPassword string, mfaCode *string) (*models.TokenResponse, error) {
	resp, err := s.api.Login(ctx, email, masterPassword, mfaCode)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken != "" {
		if err := s.creds.Store(session.Record{AccessToken: resp.AccessToken, MasterPassword: masterPassword}); err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
		if s.announcer != nil {
			if err := s.announcer.Announce(resp.AccessToken, masterPassword); err != nil {
				s.log.Warn("session handoff failed", zap.Error(err))
			}
		}
	}
	if resp.User != nil {
		s.set(resp.User)
	}
	return resp, nil
}

// Logout tells the backend and clears the session whatever it answered.
// An expired session is not reported as an error.
func (s *AuthStore) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	if cerr := s.creds.Expire(ctx); cerr != nil {
		s.log.Error("clear session", zap.Error(cerr))
	}
	s.set(nil)
	if err != nil && !errors.Is(err, gateway.ErrAuthExpired) {
		return err
	}
	return nil
}

// Refresh loads the user for a stored token. Without a token it does
// nothing; a failed lookup signs the store out.
func (s *AuthStore) Refresh(ctx context.Context) (*models.User, error) {
	if !s.creds.HasToken() {
		return nil, nil
	}
	user, err := s.api.Me(ctx)
	if err != nil {
		s.log.Info("auth check failed", zap.Error(err))
		s.set(nil)
		return nil, err
	}
	s.set(user)
	return user, nil
}

// Register creates an account without signing in.
func (s *AuthStore) Register(ctx context.Context, email, username, masterPassword string) (*models.User, error) {
	return s.api.Register(ctx, models.RegisterRequest{
		Email:          email,
		Username:       username,
		MasterPassword: masterPassword,
	})
}

// User returns the signed-in user or nil.
func (s *AuthStore) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// IsAuthenticated reports whether a user is signed in.
func (s *AuthStore) IsAuthenticated() bool {
	return s.User() != nil
}

// Subscribe registers fn for user changes.
func (s *AuthStore) Subscribe(fn func(*models.User)) *pubsub.Subscription {
	return s.users.Subscribe(fn)
}

func (s *AuthStore) set(u *models.User) {
	s.mu.Lock()
	changed := s.user != u
	s.user = u
	s.mu.Unlock()
	if changed {
		s.users.Publish(u)
	}
}

func (s *AuthStore) reset() {
	s.set(nil)
}
