package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingRepo struct {
	MemoryRepository
	loadErr  error
	saveErr  error
	clearErr error
}

func (f *failingRepo) Load(ctx context.Context) (Record, error) {
	if f.loadErr != nil {
		return Record{}, f.loadErr
	}
	return f.MemoryRepository.Load(ctx)
}

func (f *failingRepo) Save(ctx context.Context, r Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryRepository.Save(ctx, r)
}

func (f *failingRepo) Clear(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.MemoryRepository.Clear(ctx)
}

func TestRecord_States(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		auth    bool
		empty   bool
		partial bool
	}{
		{"both", Record{AccessToken: "t", MasterPassword: "p"}, true, false, false},
		{"none", Record{}, false, true, false},
		{"token only", Record{AccessToken: "t"}, false, false, true},
		{"secret only", Record{MasterPassword: "p"}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.auth, tt.rec.Authenticated())
			assert.Equal(t, tt.empty, tt.rec.Empty())
			assert.Equal(t, tt.partial, tt.rec.Partial())
		})
	}
}

func TestStore_PutLoadClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(&MemoryRepository{}, nil, nil)

	var events []Event
	sub := store.Subscribe(func(e Event) { events = append(events, e) })
	defer sub.Close()

	require.NoError(t, store.Put(ctx, Record{AccessToken: "tok", MasterPassword: "mp"}, ReasonLogin))
	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Authenticated())
	assert.Equal(t, "mp", rec.MasterPassword)

	require.NoError(t, store.Clear(ctx, ReasonLogout))
	rec, err = store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Empty())

	require.Len(t, events, 2)
	assert.Equal(t, Event{Reason: ReasonLogin, Authenticated: true}, events[0])
	assert.Equal(t, Event{Reason: ReasonLogout}, events[1])
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore(&MemoryRepository{}, nil, nil)

	require.NoError(t, store.Put(ctx, Record{AccessToken: "a", MasterPassword: "1"}, ReasonLogin))
	require.NoError(t, store.Put(ctx, Record{AccessToken: "b", MasterPassword: "2"}, ReasonSync))

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Record{AccessToken: "b", MasterPassword: "2"}, rec)
}

func TestStore_SaveErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{}
	store := NewStore(repo, nil, nil)
	require.NoError(t, store.Put(ctx, Record{AccessToken: "a", MasterPassword: "1"}, ReasonLogin))

	repo.saveErr = errors.New("disk full")
	err := store.Put(ctx, Record{AccessToken: "b", MasterPassword: "2"}, ReasonLogin)
	assert.ErrorContains(t, err, "disk full")

	rec, _ := store.Load(ctx)
	assert.Equal(t, "a", rec.AccessToken)
}

func TestStore_ClearError(t *testing.T) {
	repo := &failingRepo{clearErr: errors.New("locked")}
	store := NewStore(repo, nil, nil)
	assert.ErrorContains(t, store.Clear(context.Background(), ReasonLogout), "locked")
}

func TestStore_UnreadablePreviousRecordIsLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	repo := &failingRepo{loadErr: errors.New("corrupt file")}
	store := NewStore(repo, nil, zap.New(core))

	require.NoError(t, store.Put(ctx, Record{AccessToken: "a", MasterPassword: "1"}, ReasonLogin))
	require.NoError(t, store.Clear(ctx, ReasonLogout))

	entries := logs.FilterMessage("previous session unreadable").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "put", entries[0].ContextMap()["op"])
	assert.Equal(t, "clear", entries[1].ContextMap()["op"])
	assert.Equal(t, "corrupt file", entries[0].ContextMap()["error"])
}

func TestStore_EventsFollowWriteOrder(t *testing.T) {
	ctx := context.Background()
	repo := &MemoryRepository{}
	store := NewStore(repo, nil, nil)

	var (
		mu         sync.Mutex
		events     []Event
		mismatches int
	)
	sub := store.Subscribe(func(e Event) {
		// the repository must still hold the write this event describes
		persisted, _ := repo.Load(ctx)
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		if persisted.Authenticated() != e.Authenticated {
			mismatches++
		}
	})
	defer sub.Close()

	const writers = 16
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 25 {
				if (i+j)%2 == 0 {
					_ = store.Put(ctx, Record{AccessToken: fmt.Sprintf("t%d-%d", i, j), MasterPassword: "mp"}, ReasonSync)
				} else {
					_ = store.Clear(ctx, ReasonLogout)
				}
			}
		}()
	}
	wg.Wait()

	rec, err := store.Load(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, writers*25)
	assert.Zero(t, mismatches)
	assert.Equal(t, rec.Authenticated(), events[len(events)-1].Authenticated)
}

func TestStore_ClearIf(t *testing.T) {
	ctx := context.Background()
	store := NewStore(&MemoryRepository{}, nil, nil)
	require.NoError(t, store.Put(ctx, Record{AccessToken: "fresh", MasterPassword: "mp"}, ReasonSync))

	var events []Event
	sub := store.Subscribe(func(e Event) { events = append(events, e) })
	defer sub.Close()

	isStale := func(r Record) bool { return r.AccessToken == "stale" }

	cleared, err := store.ClearIf(ctx, ReasonExpired, isStale)
	require.NoError(t, err)
	assert.False(t, cleared)
	rec, _ := store.Load(ctx)
	assert.Equal(t, "fresh", rec.AccessToken)
	assert.Empty(t, events)

	require.NoError(t, store.Put(ctx, Record{AccessToken: "stale", MasterPassword: "mp"}, ReasonSync))
	cleared, err = store.ClearIf(ctx, ReasonExpired, isStale)
	require.NoError(t, err)
	assert.True(t, cleared)
	rec, _ = store.Load(ctx)
	assert.True(t, rec.Empty())
	require.Len(t, events, 2)
	assert.Equal(t, Event{Reason: ReasonExpired}, events[1])

	repo := &failingRepo{loadErr: errors.New("corrupt file")}
	_, err = NewStore(repo, nil, nil).ClearIf(ctx, ReasonExpired, isStale)
	assert.ErrorContains(t, err, "corrupt file")
}

func TestStore_HandleCodec(t *testing.T) {
	ctx := context.Background()
	repo := &MemoryRepository{}
	codec := NewHandleCodec()
	store := NewStore(repo, codec, nil)

	require.NoError(t, store.Put(ctx, Record{AccessToken: "tok", MasterPassword: "secret"}, ReasonLogin))

	persisted, _ := repo.Load(ctx)
	assert.NotEqual(t, "secret", persisted.MasterPassword)
	assert.Contains(t, persisted.MasterPassword, handlePrefix)

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", rec.MasterPassword)

	// a fresh codec models a restart: the handle no longer resolves
	restarted := NewStore(repo, NewHandleCodec(), nil)
	rec, err = restarted.Load(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Partial())
	assert.False(t, rec.Authenticated())
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("")
	require.NoError(t, err)
	assert.IsType(t, Plaintext{}, c)

	c, err = CodecFor("handle")
	require.NoError(t, err)
	assert.IsType(t, &HandleCodec{}, c)

	_, err = CodecFor("rot13")
	assert.Error(t, err)
}
