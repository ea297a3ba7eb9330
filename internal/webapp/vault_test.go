package webapp

import (
	"context"
	"errors"
	"testing"

	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockVaultAPI struct {
	ListEntriesFunc func(ctx context.Context) ([]models.VaultEntry, error)
	GetEntryFunc    func(ctx context.Context, id string) (*models.VaultEntry, error)
	AddEntryFunc    func(ctx context.Context, in models.VaultEntryInput) (*models.VaultEntry, error)
	UpdateEntryFunc func(ctx context.Context, id string, in models.VaultEntryInput) (*models.VaultEntry, error)
	DeleteEntryFunc func(ctx context.Context, id string) error
}

func (m *mockVaultAPI) ListEntries(ctx context.Context) ([]models.VaultEntry, error) {
	return m.ListEntriesFunc(ctx)
}
func (m *mockVaultAPI) GetEntry(ctx context.Context, id string) (*models.VaultEntry, error) {
	return m.GetEntryFunc(ctx, id)
}
func (m *mockVaultAPI) AddEntry(ctx context.Context, in models.VaultEntryInput) (*models.VaultEntry, error) {
	return m.AddEntryFunc(ctx, in)
}
func (m *mockVaultAPI) UpdateEntry(ctx context.Context, id string, in models.VaultEntryInput) (*models.VaultEntry, error) {
	return m.UpdateEntryFunc(ctx, id, in)
}
func (m *mockVaultAPI) DeleteEntry(ctx context.Context, id string) error {
	return m.DeleteEntryFunc(ctx, id)
}

func titles(entries []models.VaultEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Title)
	}
	return out
}

func TestVaultStore_KeepsListCoherent(t *testing.T) {
	api := &mockVaultAPI{
		ListEntriesFunc: func(context.Context) ([]models.VaultEntry, error) {
			return []models.VaultEntry{{ID: "1", Title: "mail"}, {ID: "2", Title: "bank"}}, nil
		},
		AddEntryFunc: func(_ context.Context, in models.VaultEntryInput) (*models.VaultEntry, error) {
			return &models.VaultEntry{ID: "3", Title: in.Title}, nil
		},
		UpdateEntryFunc: func(_ context.Context, id string, in models.VaultEntryInput) (*models.VaultEntry, error) {
			return &models.VaultEntry{ID: id, Title: in.Title}, nil
		},
		DeleteEntryFunc: func(context.Context, string) error { return nil },
	}
	s := NewVaultStore(api)
	ctx := context.Background()

	var published [][]string
	sub := s.Subscribe(func(e []models.VaultEntry) { published = append(published, titles(e)) })
	defer sub.Close()

	_, err := s.Fetch(ctx)
	require.NoError(t, err)
	_, err = s.Add(ctx, models.VaultEntryInput{Title: "github"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "2", models.VaultEntryInput{Title: "bank (old)"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "1"))

	assert.Equal(t, [][]string{
		{"mail", "bank"},
		{"github", "mail", "bank"},
		{"github", "mail", "bank (old)"},
		{"github", "bank (old)"},
	}, published)
	assert.Equal(t, []string{"github", "bank (old)"}, titles(s.Entries()))
}

func TestVaultStore_FailuresLeaveListAlone(t *testing.T) {
	boom := errors.New("Request failed")
	api := &mockVaultAPI{
		ListEntriesFunc: func(context.Context) ([]models.VaultEntry, error) {
			return []models.VaultEntry{{ID: "1", Title: "mail"}}, nil
		},
		AddEntryFunc: func(context.Context, models.VaultEntryInput) (*models.VaultEntry, error) {
			return nil, boom
		},
		DeleteEntryFunc: func(context.Context, string) error { return boom },
	}
	s := NewVaultStore(api)
	ctx := context.Background()
	_, err := s.Fetch(ctx)
	require.NoError(t, err)

	_, err = s.Add(ctx, models.VaultEntryInput{Title: "x"})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Delete(ctx, "1"), boom)
	assert.Equal(t, []string{"mail"}, titles(s.Entries()))
}

func TestVaultStore_AddWithoutBody(t *testing.T) {
	api := &mockVaultAPI{
		AddEntryFunc: func(context.Context, models.VaultEntryInput) (*models.VaultEntry, error) { return nil, nil },
	}
	s := NewVaultStore(api)
	e, err := s.Add(context.Background(), models.VaultEntryInput{Title: "x"})
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Empty(t, s.Entries())
}

func TestVaultStore_EntriesIsACopy(t *testing.T) {
	api := &mockVaultAPI{
		ListEntriesFunc: func(context.Context) ([]models.VaultEntry, error) {
			return []models.VaultEntry{{ID: "1", Title: "mail"}}, nil
		},
	}
	s := NewVaultStore(api)
	_, err := s.Fetch(context.Background())
	require.NoError(t, err)

	got := s.Entries()
	got[0].Title = "changed"
	assert.Equal(t, "mail", s.Entries()[0].Title)
}
