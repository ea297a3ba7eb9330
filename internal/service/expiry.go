package service

import (
	"context"
	"time"

	"github.com/atinyakov/keeperbridge/internal/session"
	"go.uber.org/zap"
)

// Expirer clears a stored session whose token has run out.
type Expirer interface {
	ExpireStale(ctx context.Context) (bool, error)
}

// ExpireStale clears the session record when its token's exp claim has
// passed, publishing an expired event. Opaque tokens are never cleared here.
// It reports whether the record was cleared.
func (s *Service) ExpireStale(ctx context.Context) (bool, error) {
	cleared, err := s.sessions.ClearIf(ctx, session.ReasonExpired, func(r session.Record) bool {
		return r.AccessToken != "" && s.tokenExpired(r.AccessToken)
	})
	if err != nil {
		return false, err
	}
	if cleared {
		s.log.Info("expired session cleared")
	}
	return cleared, nil
}

// StartExpiryWatcher periodically asks e to clear an expired session until
// ctx is done. A non-positive interval disables the watcher.
func StartExpiryWatcher(ctx context.Context, e Expirer, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.ExpireStale(ctx); err != nil {
					log.Error("failed to expire stale session", zap.Error(err))
				}
			}
		}
	}()
}
