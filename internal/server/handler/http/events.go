package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/atinyakov/keeperbridge/internal/pubsub"
	"github.com/atinyakov/keeperbridge/internal/session"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	eventQueueSize    = 16
	eventWriteTimeout = 5 * time.Second
)

// EventSource defines the session change feed streamed to control panels.
type EventSource interface {
	Subscribe(fn func(session.Event)) *pubsub.Subscription
}

// EventsHandler upgrades to a websocket and pushes one JSON message per
// session change until either side goes away.
type EventsHandler struct {
	Source EventSource
	Log    *zap.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error("events: accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	// the stream is one-way; CloseRead drains control frames and cancels
	// ctx when the peer closes
	ctx := conn.CloseRead(r.Context())

	queue := make(chan session.Event, eventQueueSize)
	sub := h.Source.Subscribe(func(e session.Event) {
		select {
		case queue <- e:
		default:
			log.Warn("events: subscriber too slow, dropping event", zap.String("reason", string(e.Reason)))
		}
	})
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-queue:
			if err := writeEvent(ctx, conn, e); err != nil {
				log.Info("events: write failed", zap.Error(err), zap.Int("close_status", int(websocket.CloseStatus(err))))
				return
			}
		}
	}
}

func writeEvent(parent context.Context, conn *websocket.Conn, e session.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, eventWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}
