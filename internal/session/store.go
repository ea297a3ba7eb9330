package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/keeperbridge/internal/pubsub"
	"go.uber.org/zap"
)

// Repository is the durable key/value backend of a Store. Implementations
// persist the two keys under a single write.
type Repository interface {
	// Load returns the persisted record; a missing record is the zero Record.
	Load(ctx context.Context) (Record, error)
	// Save persists both keys, overwriting what was there.
	Save(ctx context.Context, r Record) error
	// Clear removes both keys.
	Clear(ctx context.Context) error
}

// Reason explains why the record changed.
type Reason string

const (
	ReasonLogin   Reason = "login"
	ReasonSync    Reason = "sync"
	ReasonLogout  Reason = "logout"
	ReasonExpired Reason = "expired"
)

// Event is published after every successful mutation. It never carries the
// secrets themselves.
type Event struct {
	Reason        Reason `json:"reason"`
	Authenticated bool   `json:"authenticated"`
}

// Store serialises access to the session record.
type Store struct {
	mu     sync.Mutex
	repo   Repository
	codec  SecretCodec
	events *pubsub.Hub[Event]
	log    *zap.Logger
}

// NewStore wraps repo. A nil codec means Plaintext; a nil logger is a no-op.
func NewStore(repo Repository, codec SecretCodec, log *zap.Logger) *Store {
	if codec == nil {
		codec = Plaintext{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		repo:   repo,
		codec:  codec,
		events: pubsub.New[Event](),
		log:    log,
	}
}

// Load returns the current record with the secret opened.
func (s *Store) Load(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) (Record, error) {
	stored, err := s.repo.Load(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	secret, err := s.codec.Open(stored.MasterPassword)
	if err != nil {
		if errors.Is(err, ErrUnknownHandle) {
			s.log.Warn("session secret handle not resolvable, treating record as partial")
			return Record{AccessToken: stored.AccessToken}, nil
		}
		return Record{}, fmt.Errorf("open session secret: %w", err)
	}
	return Record{AccessToken: stored.AccessToken, MasterPassword: secret}, nil
}

// Credentials implements the gateway credential source.
func (s *Store) Credentials(ctx context.Context) (Record, error) {
	return s.Load(ctx)
}

// Put overwrites the record unconditionally.
func (s *Store) Put(ctx context.Context, r Record, reason Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.previousLocked(ctx, "put")
	sealed, err := s.codec.Seal(r.MasterPassword)
	if err != nil {
		return fmt.Errorf("seal session secret: %w", err)
	}
	if err := s.repo.Save(ctx, Record{AccessToken: r.AccessToken, MasterPassword: sealed}); err != nil {
		s.codec.Forget(sealed)
		return fmt.Errorf("save session: %w", err)
	}
	if prev.MasterPassword != "" && prev.MasterPassword != sealed {
		s.codec.Forget(prev.MasterPassword)
	}

	s.log.Info("session stored",
		zap.String("reason", string(reason)),
		zap.Bool("has_token", r.AccessToken != ""),
		zap.Bool("has_secret", r.MasterPassword != ""),
		zap.Int("subscribers", s.events.Len()),
	)
	s.events.Publish(Event{Reason: reason, Authenticated: r.Authenticated()})
	return nil
}

// Clear removes both fields.
func (s *Store) Clear(ctx context.Context, reason Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx, reason)
}

// ClearIf removes both fields when pred accepts the current record. The
// check and the clear happen under one lock, so a record written in between
// is never removed by mistake. It reports whether the record was cleared.
func (s *Store) ClearIf(ctx context.Context, reason Reason, pred func(Record) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	if !pred(cur) {
		return false, nil
	}
	if err := s.clearLocked(ctx, reason); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) clearLocked(ctx context.Context, reason Reason) error {
	prev := s.previousLocked(ctx, "clear")
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if prev.MasterPassword != "" {
		s.codec.Forget(prev.MasterPassword)
	}

	s.log.Info("session cleared",
		zap.String("reason", string(reason)),
		zap.Int("subscribers", s.events.Len()),
	)
	s.events.Publish(Event{Reason: reason})
	return nil
}

// previousLocked reads the stored record about to be replaced so its sealed
// secret can be forgotten. An unreadable record does not block the write; its
// handle, if any, stays registered until the process exits.
func (s *Store) previousLocked(ctx context.Context, op string) Record {
	prev, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Warn("previous session unreadable", zap.String("op", op), zap.Error(err))
		return Record{}
	}
	return prev
}

// Expire clears the record after the backend rejected the token.
func (s *Store) Expire(ctx context.Context) error {
	return s.Clear(ctx, ReasonExpired)
}

// Subscribe registers fn for change events. Events are delivered in write
// order while the store is locked, so fn must not call back into the Store
// and must not block.
func (s *Store) Subscribe(fn func(Event)) *pubsub.Subscription {
	return s.events.Subscribe(fn)
}
