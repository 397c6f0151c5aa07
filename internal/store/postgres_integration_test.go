//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/database"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=fleetcomm",
			"POSTGRES_PASSWORD=fleetcomm",
			"POSTGRES_DB=fleetcomm",
		},
	}, func(hostConfig *docker.HostConfig) {
		hostConfig.AutoRemove = true
		hostConfig.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pool.Purge(resource))
	})

	dsn := fmt.Sprintf(
		"host=localhost user=fleetcomm password=fleetcomm dbname=fleetcomm port=%s sslmode=disable",
		resource.GetPort("5432/tcp"),
	)

	var dbConn *gorm.DB

	err = pool.Retry(func() error {
		var openErr error

		dbConn, openErr = database.Open(postgres.Open(dsn))

		return openErr
	})
	require.NoError(t, err)

	return dbConn
}

func TestPostgresBackendPersistsCollections(t *testing.T) {
	ctx := context.Background()
	dbConn := startPostgres(t)

	backend, err := NewGormBackend(dbConn, true)
	require.NoError(t, err)

	items := NewCollection(New(backend), "items", itemID)
	require.NoError(t, items.Append(ctx, item{ID: "a", Name: "one"}, item{ID: "b", Name: "two"}))

	_, err = items.Update(ctx, "b", func(i *item) error {
		i.Name = "updated"
		return nil
	})
	require.NoError(t, err)

	restarted := New(backend)
	reloaded := NewCollection(restarted, "items", itemID)
	require.NoError(t, restarted.Init(ctx))

	all := reloaded.GetAll()
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)
	require.Equal(t, "updated", all[1].Name)
}
