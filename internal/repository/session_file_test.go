package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/atinyakov/keeperbridge/internal/session"
)

func TestFileSessionRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	repo := NewFileSessionRepository(path)

	rec, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	if !rec.Empty() {
		t.Fatalf("expected empty record, got %+v", rec)
	}

	want := session.Record{AccessToken: "tok", MasterPassword: "mp"}
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	// a fresh repository sees what the previous one wrote
	got, err := NewFileSessionRepository(path).Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
	if err := repo.Clear(ctx); err != nil {
		t.Errorf("clearing twice should be a no-op, got %v", err)
	}
}

func TestFileSessionRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileSessionRepository(path).Load(context.Background()); err == nil {
		t.Error("expected decode error, got nil")
	}
}
