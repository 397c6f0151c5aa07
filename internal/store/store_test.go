package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func itemID(i item) string { return i.ID }

type flakyBackend struct {
	*MemoryBackend

	mu       sync.Mutex
	failLoad bool
	failSave bool
	saves    int
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{MemoryBackend: NewMemoryBackend()}
}

func (f *flakyBackend) setFailSave(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failSave = fail
}

func (f *flakyBackend) Load(ctx context.Context, collection string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failLoad
	f.mu.Unlock()

	if fail {
		return nil, ErrBackendUnavailable
	}

	return f.MemoryBackend.Load(ctx, collection)
}

func (f *flakyBackend) Save(ctx context.Context, collection string, payload []byte) error {
	f.mu.Lock()
	fail := f.failSave
	f.saves++
	f.mu.Unlock()

	if fail {
		return ErrBackendUnavailable
	}

	return f.MemoryBackend.Save(ctx, collection, payload)
}

func TestCollectionPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	items := NewCollection(New(NewMemoryBackend()), "items", itemID)

	require.NoError(t, items.Append(ctx, item{ID: "b"}, item{ID: "a"}))
	require.NoError(t, items.Append(ctx, item{ID: "c"}))

	all := items.GetAll()
	require.Len(t, all, 3)
	require.Equal(t, "b", all[0].ID)
	require.Equal(t, "a", all[1].ID)
	require.Equal(t, "c", all[2].ID)
}

func TestCollectionGetByIDNotFound(t *testing.T) {
	items := NewCollection(New(NewMemoryBackend()), "items", itemID)

	_, err := items.GetByID("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionUpdate(t *testing.T) {
	ctx := context.Background()
	items := NewCollection(New(NewMemoryBackend()), "items", itemID)
	require.NoError(t, items.Append(ctx, item{ID: "a", Name: "old", Tags: []string{"x"}}))

	before := items.GetAll()

	updated, err := items.Update(ctx, "a", func(i *item) error {
		i.Name = "new"
		i.Tags[0] = "y"

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "new", updated.Name)

	got, err := items.GetByID("a")
	require.NoError(t, err)
	require.Equal(t, "new", got.Name)
	require.Equal(t, []string{"y"}, got.Tags)

	require.Equal(t, []string{"x"}, before[0].Tags, "earlier reads must not observe the update")

	_, err = items.Update(ctx, "missing", func(*item) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionUpdateMutateErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	items := NewCollection(New(NewMemoryBackend()), "items", itemID)
	require.NoError(t, items.Append(ctx, item{ID: "a", Name: "keep"}))

	errRejected := errors.New("rejected")

	_, err := items.Update(ctx, "a", func(i *item) error {
		i.Name = "changed"
		return errRejected
	})
	require.ErrorIs(t, err, errRejected)

	got, err := items.GetByID("a")
	require.NoError(t, err)
	require.Equal(t, "keep", got.Name)
}

func TestCollectionUpsertKeepsSize(t *testing.T) {
	ctx := context.Background()
	items := NewCollection(New(NewMemoryBackend()), "items", itemID)

	_, inserted, err := items.Upsert(ctx, "a",
		func() item { return item{ID: "a"} },
		func(i *item) error { i.Name = "first"; return nil },
	)
	require.NoError(t, err)
	require.True(t, inserted)

	record, inserted, err := items.Upsert(ctx, "a",
		func() item { return item{ID: "a"} },
		func(i *item) error { i.Name = "second"; return nil },
	)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "second", record.Name)
	require.Equal(t, 1, items.Len())
}

func TestCollectionSaveReplacesAndDelete(t *testing.T) {
	ctx := context.Background()
	items := NewCollection(New(NewMemoryBackend()), "items", itemID)
	require.NoError(t, items.Append(ctx, item{ID: "a"}, item{ID: "b"}))

	require.NoError(t, items.Save(ctx, []item{{ID: "c"}}))
	require.Len(t, items.GetAll(), 1)

	require.NoError(t, items.Append(ctx, item{ID: "d"}))
	require.NoError(t, items.Delete(ctx, "c"))
	require.NoError(t, items.Delete(ctx, "c"))

	all := items.GetAll()
	require.Len(t, all, 1)
	require.Equal(t, "d", all[0].ID)

	found := items.Find(func(i item) bool { return i.ID == "d" })
	require.Len(t, found, 1)
}

func TestStoreInitLoadsFromBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	first := New(backend)
	items := NewCollection(first, "items", itemID)
	require.NoError(t, items.Append(ctx, item{ID: "a", Name: "persisted"}))

	second := New(backend)
	reloaded := NewCollection(second, "items", itemID)
	empty := NewCollection(second, "never_saved", itemID)
	require.NoError(t, second.Init(ctx))

	got, err := reloaded.GetByID("a")
	require.NoError(t, err)
	require.Equal(t, "persisted", got.Name)
	require.Empty(t, empty.GetAll())
}

func TestStoreInitDegradesToEmpty(t *testing.T) {
	backend := newFlakyBackend()
	backend.failLoad = true

	s := New(backend)
	items := NewCollection(s, "items", itemID)

	err := s.Init(context.Background())
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Empty(t, items.GetAll())
}

func TestWriteThroughFailureKeepsWriteAndRetries(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend()
	backend.setFailSave(true)

	s := New(backend)
	items := NewCollection(s, "items", itemID)

	require.NoError(t, items.Append(ctx, item{ID: "a"}))
	require.Len(t, items.GetAll(), 1)
	require.True(t, items.Dirty())

	require.Error(t, s.Flush(ctx))

	backend.setFailSave(false)
	require.NoError(t, s.Flush(ctx))
	require.False(t, items.Dirty())

	payload, err := backend.MemoryBackend.Load(ctx, "items")
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"a","name":"","tags":null}]`, string(payload))
}

func TestConcurrentUpdatesAreAtomicPerCall(t *testing.T) {
	ctx := context.Background()
	items := NewCollection(New(NewMemoryBackend()), "items", itemID)
	require.NoError(t, items.Append(ctx, item{ID: "a"}))

	var waitGroup sync.WaitGroup

	for range 50 {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			_, err := items.Update(ctx, "a", func(i *item) error {
				i.Tags = append(i.Tags, "t")
				return nil
			})
			require.NoError(t, err)
		}()
	}

	waitGroup.Wait()

	got, err := items.GetByID("a")
	require.NoError(t, err)
	require.Len(t, got.Tags, 50)
}
