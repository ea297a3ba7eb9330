// Package http exposes the privileged channel over HTTPS: envelopes are
// posted to /api/message and answered in the same round trip.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/middleware"
	"go.uber.org/zap"
)

// Dispatcher defines the interface for handling envelopes.
type Dispatcher interface {
	// Dispatch starts handling env and returns its pending result.
	Dispatch(ctx context.Context, env message.Envelope) *message.Future
}

// Policy restricts actions to named callers. Actions absent from the map
// are open to every authenticated caller.
type Policy map[message.Action][]string

// Allows reports whether caller may send action.
func (p Policy) Allows(action message.Action, caller string) bool {
	callers, ok := p[action]
	if !ok {
		return true
	}
	return slices.Contains(callers, caller)
}

// MessageHandler handles envelope requests.
type MessageHandler struct {
	// Dispatcher performs the requested action.
	Dispatcher Dispatcher
	// Policy optionally restricts who may send which action.
	Policy Policy
	Log    *zap.Logger
}

// ServeHTTP decodes one envelope, dispatches it and writes its response.
// Failed actions are still answered with 200; the body carries the error.
func (h *MessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env message.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil || env.Action == "" {
		writeResponse(w, http.StatusBadRequest, message.Fail(message.CodeInvalid, "invalid request"))
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	if !h.Policy.Allows(env.Action, caller) {
		writeResponse(w, http.StatusForbidden, message.Fail(message.CodeInvalid, "action not allowed for "+caller))
		return
	}

	resp, err := h.Dispatcher.Dispatch(r.Context(), env).Wait(r.Context())
	if err != nil {
		// client went away; the handler still runs to completion
		if h.Log != nil {
			h.Log.Info("caller left before response", zap.String("action", string(env.Action)), zap.Error(err))
		}
		return
	}
	writeResponse(w, http.StatusOK, resp)
}

func writeResponse(w http.ResponseWriter, status int, resp message.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
