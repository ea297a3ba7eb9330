package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atinyakov/keeperbridge/internal/session"
)

// FileSessionRepository keeps the record as a small JSON document on disk.
// Writes go to a temp file that is renamed over the target, so both keys
// land together or not at all.
type FileSessionRepository struct {
	path string
	mu   sync.Mutex
}

type fileSession struct {
	AccessToken    string `json:"access_token,omitempty"`
	MasterPassword string `json:"master_password,omitempty"`
}

// NewFileSessionRepository returns a repository backed by path.
func NewFileSessionRepository(path string) *FileSessionRepository {
	return &FileSessionRepository{path: path}
}

func (f *FileSessionRepository) Load(_ context.Context) (session.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return session.Record{}, nil
		}
		return session.Record{}, fmt.Errorf("open session file: %w", err)
	}
	defer fh.Close()

	var fs fileSession
	if err := json.NewDecoder(fh).Decode(&fs); err != nil {
		return session.Record{}, fmt.Errorf("decode session file: %w", err)
	}
	return session.Record{AccessToken: fs.AccessToken, MasterPassword: fs.MasterPassword}, nil
}

func (f *FileSessionRepository) Save(_ context.Context, rec session.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(fileSession{AccessToken: rec.AccessToken, MasterPassword: rec.MasterPassword}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (f *FileSessionRepository) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
