package webapp

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sync"
)

// Storage is a string key/value area with the semantics of the browser's
// local and session storage.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// LocalStorage persists its keys in a JSON file and survives restarts.
type LocalStorage struct {
	path  string
	mu    sync.Mutex
	items map[string]string
}

type localFile struct {
	Items map[string]string `json:"items"`
}

// NewLocalStorage opens the storage kept at path. A missing file is an
// empty storage.
func NewLocalStorage(path string) (*LocalStorage, error) {
	ls := &LocalStorage{path: path}
	if err := ls.Load(); err != nil {
		return nil, err
	}
	return ls, nil
}

// Load replaces the in-memory keys with the file contents.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	f, err := os.Open(ls.path)
	if err != nil {
		if os.IsNotExist(err) {
			ls.items = make(map[string]string)
			return nil
		}
		return fmt.Errorf("open local storage: %w", err)
	}
	defer f.Close()

	var lf localFile
	if err := json.NewDecoder(f).Decode(&lf); err != nil {
		return fmt.Errorf("decode local storage: %w", err)
	}
	if lf.Items == nil {
		lf.Items = make(map[string]string)
	}
	ls.items = lf.Items
	return nil
}

func (ls *LocalStorage) save() error {
	f, err := os.OpenFile(ls.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write local storage: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(localFile{Items: ls.items})
}

func (ls *LocalStorage) Get(key string) (string, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	v, ok := ls.items[key]
	return v, ok
}

func (ls *LocalStorage) Set(key, value string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.items[key] = value
	return ls.save()
}

func (ls *LocalStorage) Remove(key string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, ok := ls.items[key]; !ok {
		return nil
	}
	delete(ls.items, key)
	return ls.save()
}

// SessionStorage lives as long as the process.
type SessionStorage struct {
	mu    sync.Mutex
	items map[string]string
}

// NewSessionStorage returns an empty session storage.
func NewSessionStorage() *SessionStorage {
	return &SessionStorage{items: make(map[string]string)}
}

func (s *SessionStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *SessionStorage) Set(key, value string) error {
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
	return nil
}

func (s *SessionStorage) Remove(key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Keys returns a copy of the stored keys and values.
func (s *SessionStorage) Keys() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.items)
}
