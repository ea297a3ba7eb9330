// Package gateway is the outbound HTTP client for the vault backend.
//
// Two independent instances exist at runtime, one in the broker and one in
// the web application. Both share this implementation, so given the same
// credentials and responses they behave identically.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/keeperbridge/internal/session"
	"go.uber.org/zap"
)

// Header names attached to outbound requests.
const (
	HeaderAuthorization  = "Authorization"
	HeaderMasterPassword = "X-Master-Password"
	HeaderMFASecret      = "X-MFA-Secret"
)

const fallbackMessage = "Request failed"

// ErrAuthExpired is returned for any 401 response, after the credential
// source has been cleared. Callers must ask the user to log in again.
var ErrAuthExpired = errors.New("Authentication expired. Please log in again.")

// ErrMFARequired matches a 428 RequestError via errors.Is.
var ErrMFARequired = errors.New("MFA code required")

// RequestError is a non-401 failure reported by the backend.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string { return e.Message }

// Is lets errors.Is(err, ErrMFARequired) match a 428 response.
func (e *RequestError) Is(target error) bool {
	return target == ErrMFARequired && e.StatusCode == http.StatusPreconditionRequired
}

// CredentialSource provides the session used to authenticate requests and
// is cleared when the backend rejects it.
type CredentialSource interface {
	Credentials(ctx context.Context) (session.Record, error)
	Expire(ctx context.Context) error
}

// Result describes a successful response.
type Result struct {
	StatusCode int
	// NoContent is set for 204 responses and empty bodies; out is left untouched.
	NoContent bool
}

// Client sends JSON requests to the backend.
type Client struct {
	baseURL   string
	http      *http.Client
	creds     CredentialSource
	scope     *Scope
	log       *zap.Logger
	onExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithScope sets the sensitive-scope predicate.
func WithScope(s *Scope) Option {
	return func(c *Client) { c.scope = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithExpiredHook runs fn after the credential source was cleared on a 401.
func WithExpiredHook(fn func()) Option {
	return func(c *Client) { c.onExpired = fn }
}

// NewClient creates a Client for baseURL. creds may be nil for
// unauthenticated use.
func NewClient(baseURL string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		scope:   DefaultScope(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOption adjusts a single request.
type RequestOption func(*http.Request)

// WithHeader sets an extra header on one request.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Do sends body as JSON to path and decodes a successful response into out.
// body and out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) (Result, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.creds != nil {
		rec, err := c.creds.Credentials(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("read credentials: %w", err)
		}
		if rec.AccessToken != "" {
			req.Header.Set(HeaderAuthorization, "Bearer "+rec.AccessToken)
		}
		if rec.MasterPassword != "" && c.scope.Sensitive(path) {
			req.Header.Set(HeaderMasterPassword, rec.MasterPassword)
		}
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		c.expire(ctx)
		return Result{StatusCode: resp.StatusCode}, ErrAuthExpired
	}
	if resp.StatusCode == http.StatusNoContent {
		return Result{StatusCode: resp.StatusCode, NoContent: true}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if !ok {
		return Result{StatusCode: resp.StatusCode}, &RequestError{
			StatusCode: resp.StatusCode,
			Message:    detailOf(raw),
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Result{StatusCode: resp.StatusCode, NoContent: true}, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return Result{}, fmt.Errorf("decode response: %w", err)
		}
	}
	return Result{StatusCode: resp.StatusCode}, nil
}

func (c *Client) expire(ctx context.Context) {
	if c.creds != nil {
		if err := c.creds.Expire(ctx); err != nil {
			c.log.Error("failed to clear expired session", zap.Error(err))
		}
	}
	if c.onExpired != nil {
		c.onExpired()
	}
}

// detailOf extracts the backend's "detail" string. Validation errors carry
// a list there, which yields the generic message.
func detailOf(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return fallbackMessage
	}
	var msg string
	if err := json.Unmarshal(body.Detail, &msg); err != nil || msg == "" {
		return fallbackMessage
	}
	return msg
}
