package store

import (
	"context"
	"path/filepath"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/database"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func newSqliteBackend(t *testing.T) *GormBackend {
	t.Helper()

	dbConn, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")))
	require.NoError(t, err)

	backend, err := NewGormBackend(dbConn, true)
	require.NoError(t, err)

	t.Cleanup(func() { _ = backend.Close() })

	return backend
}

func TestGormBackendLoadMissingCollection(t *testing.T) {
	backend := newSqliteBackend(t)

	payload, err := backend.Load(context.Background(), "drivers")
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestGormBackendUpsertsCollection(t *testing.T) {
	ctx := context.Background()
	backend := newSqliteBackend(t)

	require.NoError(t, backend.Save(ctx, "drivers", []byte(`[{"id":"1"}]`)))
	require.NoError(t, backend.Save(ctx, "drivers", []byte(`[{"id":"1"},{"id":"2"}]`)))

	payload, err := backend.Load(ctx, "drivers")
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"1"},{"id":"2"}]`, string(payload))

	var count int64
	require.NoError(t, backend.DBConn.Model(&KVCollection{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	require.Equal(t, "sqlite", backend.Name())
	require.NoError(t, backend.Ping(ctx))
}

func TestStoreRoundTripOverSqlite(t *testing.T) {
	ctx := context.Background()
	backend := newSqliteBackend(t)

	items := NewCollection(New(backend), "items", itemID)
	require.NoError(t, items.Append(ctx, item{ID: "a", Name: "durable"}))

	restarted := New(backend)
	reloaded := NewCollection(restarted, "items", itemID)
	require.NoError(t, restarted.Init(ctx))

	got, err := reloaded.GetByID("a")
	require.NoError(t, err)
	require.Equal(t, "durable", got.Name)
}
