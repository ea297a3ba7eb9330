package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SecretCodec converts the master secret to and from its durable form.
type SecretCodec interface {
	// Seal returns the value to persist for secret.
	Seal(secret string) (string, error)
	// Open recovers the secret from its persisted value.
	Open(stored string) (string, error)
	// Forget releases whatever Seal retained for stored.
	Forget(stored string)
}

// Plaintext persists the secret as-is.
type Plaintext struct{}

func (Plaintext) Seal(secret string) (string, error) { return secret, nil }
func (Plaintext) Open(stored string) (string, error) { return stored, nil }
func (Plaintext) Forget(string)                      {}

// ErrUnknownHandle is returned when a persisted handle has no secret in memory,
// typically after a broker restart.
var ErrUnknownHandle = errors.New("unknown secret handle")

const handlePrefix = "handle:"

// HandleCodec keeps secrets in process memory and persists only an opaque
// handle. A record loaded after restart resolves to an empty secret, which
// makes it partial and therefore not authenticated.
type HandleCodec struct {
	mu      sync.Mutex
	secrets map[string]string
}

// NewHandleCodec creates an empty in-memory handle table.
func NewHandleCodec() *HandleCodec {
	return &HandleCodec{secrets: make(map[string]string)}
}

func (c *HandleCodec) Seal(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	h := handlePrefix + uuid.NewString()
	c.mu.Lock()
	c.secrets[h] = secret
	c.mu.Unlock()
	return h, nil
}

func (c *HandleCodec) Open(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !strings.HasPrefix(stored, handlePrefix) {
		return "", ErrUnknownHandle
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.secrets[stored]
	if !ok {
		return "", ErrUnknownHandle
	}
	return s, nil
}

func (c *HandleCodec) Forget(stored string) {
	c.mu.Lock()
	delete(c.secrets, stored)
	c.mu.Unlock()
}

// CodecFor returns the codec for a configured mode ("plaintext" or "handle").
func CodecFor(mode string) (SecretCodec, error) {
	switch mode {
	case "", "plaintext":
		return Plaintext{}, nil
	case "handle":
		return NewHandleCodec(), nil
	default:
		return nil, errors.New("unknown secret mode: " + mode)
	}
}
