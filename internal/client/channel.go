// Package client is the caller side of the privileged channel, used by the
// page agent, the control panel and the bridge relay.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/session"
	"github.com/coder/websocket"
)

// Channel sends envelopes to a broker.
type Channel struct {
	baseURL string
	http    *http.Client
}

// NewChannel creates a Channel for the broker at baseURL.
func NewChannel(baseURL string, hc *http.Client) *Channel {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Channel{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Send posts env and decodes the single response into out. A failed action
// is returned as *message.Error.
func (c *Channel) Send(ctx context.Context, env message.Envelope, out any) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/message", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", env.Action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && !json.Valid(raw) {
		return fmt.Errorf("channel error: %s", strings.TrimSpace(string(raw)))
	}
	return message.Decode(raw, out)
}

// Events streams session change events to fn until ctx ends or the broker
// closes the stream.
func (c *Channel) Events(ctx context.Context, fn func(session.Event)) error {
	conn, _, err := websocket.Dial(ctx, c.baseURL+"/api/events", &websocket.DialOptions{HTTPClient: c.http})
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		var e session.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(e)
	}
}
