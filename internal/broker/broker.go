// Package broker is the single dispatch point of the privileged context.
//
// Every envelope is handled on its own goroutine and produces exactly one
// Response through the returned Future. The dispatcher never fails outward:
// handler errors and panics become error responses, and envelopes naming an
// unknown action are answered rather than dropped. No ordering is imposed
// between concurrently running handlers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/keeperbridge/internal/gateway"
	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/service"
	"go.uber.org/zap"
)

// ErrMissingData is returned when savePassword carries no credential.
var ErrMissingData = errors.New("missing credential data")

// Service defines the session operations the broker exposes.
type Service interface {
	Login(ctx context.Context, email, password string, mfaCode *string) (*models.User, error)
	Logout(ctx context.Context) error
	CheckAuth(ctx context.Context) message.AuthStatus
	SavePassword(ctx context.Context, cred models.Credential) error
	SyncLogin(ctx context.Context, accessToken, masterPassword string) error
}

// Handler serves one action. The returned value is the success payload.
type Handler func(ctx context.Context, env message.Envelope) (any, error)

// Broker routes envelopes to handlers.
type Broker struct {
	handlers map[message.Action]Handler
	log      *zap.Logger
	metrics  *Metrics
	timeout  time.Duration
	inflight sync.WaitGroup
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) { b.log = l }
}

// WithMetrics records per-action counters and latency.
func WithMetrics(m *Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithTimeout bounds each handler run. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(b *Broker) { b.timeout = d }
}

// New creates a broker serving the five session actions of svc.
func New(svc Service, opts ...Option) *Broker {
	b := &Broker{
		handlers: make(map[message.Action]Handler),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.Handle(message.ActionLogin, func(ctx context.Context, env message.Envelope) (any, error) {
		var mfa *string
		if env.MFACode != "" {
			mfa = &env.MFACode
		}
		user, err := svc.Login(ctx, env.Email, env.Password, mfa)
		if err != nil {
			return nil, err
		}
		return message.LoginResult{Success: true, User: user}, nil
	})
	b.Handle(message.ActionLogout, func(ctx context.Context, _ message.Envelope) (any, error) {
		if err := svc.Logout(ctx); err != nil {
			return nil, err
		}
		return message.Success{Success: true}, nil
	})
	b.Handle(message.ActionCheckAuth, func(ctx context.Context, _ message.Envelope) (any, error) {
		return svc.CheckAuth(ctx), nil
	})
	b.Handle(message.ActionSavePassword, func(ctx context.Context, env message.Envelope) (any, error) {
		if env.Data == nil {
			return nil, ErrMissingData
		}
		if err := svc.SavePassword(ctx, *env.Data); err != nil {
			return nil, err
		}
		return message.Success{Success: true}, nil
	})
	b.Handle(message.ActionSyncLogin, func(ctx context.Context, env message.Envelope) (any, error) {
		if err := svc.SyncLogin(ctx, env.AccessToken, env.MasterPassword); err != nil {
			return nil, err
		}
		return message.Success{Success: true}, nil
	})
	return b
}

// Handle registers h for action, replacing any previous handler.
// It must not be called concurrently with Dispatch.
func (b *Broker) Handle(action message.Action, h Handler) {
	b.handlers[action] = h
}

// Dispatch starts handling env and returns immediately. The caller's
// cancellation does not abort the handler; only the broker timeout does.
func (b *Broker) Dispatch(ctx context.Context, env message.Envelope) *message.Future {
	h, ok := b.handlers[env.Action]
	if !ok {
		b.log.Warn("unknown action", zap.String("action", string(env.Action)), zap.String("id", env.ID))
		b.metrics.observe(env.Action, message.CodeUnknownAction, 0)
		return message.Resolved(message.Fail(message.CodeUnknownAction, message.ErrUnknownAction.Error()))
	}

	fut := message.NewFuture()
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		start := time.Now()
		resp := b.run(context.WithoutCancel(ctx), h, env)
		b.metrics.observe(env.Action, resp.Code, time.Since(start))
		fut.Resolve(resp)
	}()
	return fut
}

func (b *Broker) run(ctx context.Context, h Handler, env message.Envelope) (resp message.Response) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked",
				zap.String("action", string(env.Action)),
				zap.Any("panic", r),
			)
			resp = message.Fail(message.CodeInternal, fmt.Sprint(r))
		}
	}()

	payload, err := h(ctx, env)
	if err != nil {
		code := classify(err)
		b.log.Info("action failed",
			zap.String("action", string(env.Action)),
			zap.String("id", env.ID),
			zap.String("code", string(code)),
			zap.Error(err),
		)
		return message.Fail(code, err.Error())
	}
	return message.OK(payload)
}

// Wait blocks until every dispatched handler has resolved.
func (b *Broker) Wait() {
	b.inflight.Wait()
}

func classify(err error) message.Code {
	var reqErr *gateway.RequestError
	switch {
	case errors.Is(err, gateway.ErrAuthExpired):
		return message.CodeAuthExpired
	case errors.Is(err, gateway.ErrMFARequired):
		return message.CodeMFARequired
	case errors.As(err, &reqErr):
		return message.CodeRequestFailed
	case errors.Is(err, service.ErrIncompleteSession), errors.Is(err, ErrMissingData):
		return message.CodeInvalid
	default:
		return message.CodeInternal
	}
}
