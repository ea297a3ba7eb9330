package webapp

import (
	"context"
	"slices"
	"sync"

	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/atinyakov/keeperbridge/internal/pubsub"
)

// VaultAPI is the part of the backend the vault store uses.
type VaultAPI interface {
	ListEntries(ctx context.Context) ([]models.VaultEntry, error)
	GetEntry(ctx context.Context, id string) (*models.VaultEntry, error)
	AddEntry(ctx context.Context, in models.VaultEntryInput) (*models.VaultEntry, error)
	UpdateEntry(ctx context.Context, id string, in models.VaultEntryInput) (*models.VaultEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// VaultStore keeps the listed entries coherent with the changes made
// through it and publishes a copy after each change.
type VaultStore struct {
	api VaultAPI

	mu      sync.Mutex
	entries []models.VaultEntry
	hub     *pubsub.Hub[[]models.VaultEntry]
}

// NewVaultStore creates an empty store.
func NewVaultStore(api VaultAPI) *VaultStore {
	return &VaultStore{api: api, hub: pubsub.New[[]models.VaultEntry]()}
}

// Fetch replaces the entries with the backend list.
func (s *VaultStore) Fetch(ctx context.Context) ([]models.VaultEntry, error) {
	entries, err := s.api.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	return s.update(func([]models.VaultEntry) []models.VaultEntry { return entries }), nil
}

// Get returns one entry with its secret fields. The list is not changed.
func (s *VaultStore) Get(ctx context.Context, id string) (*models.VaultEntry, error) {
	return s.api.GetEntry(ctx, id)
}

// Add stores an entry and puts it first in the list.
func (s *VaultStore) Add(ctx context.Context, in models.VaultEntryInput) (*models.VaultEntry, error) {
	e, err := s.api.AddEntry(ctx, in)
	if err != nil {
		return nil, err
	}
	if e != nil {
		s.update(func(cur []models.VaultEntry) []models.VaultEntry {
			return append([]models.VaultEntry{*e}, cur...)
		})
	}
	return e, nil
}

// Update changes an entry and replaces it in the list.
func (s *VaultStore) Update(ctx context.Context, id string, in models.VaultEntryInput) (*models.VaultEntry, error) {
	e, err := s.api.UpdateEntry(ctx, id, in)
	if err != nil {
		return nil, err
	}
	if e != nil {
		s.update(func(cur []models.VaultEntry) []models.VaultEntry {
			for i := range cur {
				if cur[i].ID == id {
					cur[i] = *e
				}
			}
			return cur
		})
	}
	return e, nil
}

// Delete removes an entry from the backend and the list.
func (s *VaultStore) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.update(func(cur []models.VaultEntry) []models.VaultEntry {
		return slices.DeleteFunc(cur, func(e models.VaultEntry) bool { return e.ID == id })
	})
	return nil
}

// Entries returns a copy of the current list.
func (s *VaultStore) Entries() []models.VaultEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Subscribe registers fn for list changes. Subscribers share the
// published slice and must not modify it.
func (s *VaultStore) Subscribe(fn func([]models.VaultEntry)) *pubsub.Subscription {
	return s.hub.Subscribe(fn)
}

func (s *VaultStore) update(fn func([]models.VaultEntry) []models.VaultEntry) []models.VaultEntry {
	s.mu.Lock()
	s.entries = fn(slices.Clone(s.entries))
	snapshot := slices.Clone(s.entries)
	s.mu.Unlock()
	s.hub.Publish(snapshot)
	return slices.Clone(snapshot)
}

func (s *VaultStore) reset() {
	s.mu.Lock()
	empty := len(s.entries) == 0
	s.entries = nil
	s.mu.Unlock()
	if !empty {
		s.hub.Publish(nil)
	}
}
