package main

import (
	"errors"
	"os"
	"path/filepath"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

const validArgsLen = 2

// sqlite and memory stores create their table on startup; only postgres is migrated.
func main() {
	if len(os.Args) < validArgsLen {
		logging.Logger.Fatal("usage: migrate-apply up | down | version")
	}

	if config.Conf.StoreBackend != config.BackendPostgres {
		logging.Logger.Fatal("migrations only apply to the postgres store",
			zap.String("store_backend", config.Conf.StoreBackend),
		)
	}

	migrationsDir, err := filepath.Abs("migrations")
	if err != nil {
		logging.Logger.Fatal("failed to resolve migrations dir", zap.String("error", err.Error()))
	}

	migrator, err := migrate.New("file://"+filepath.ToSlash(migrationsDir), database.GetURL())
	if err != nil {
		logging.Logger.Fatal("failed to create migrator", zap.String("error", err.Error()))
	}

	switch os.Args[1] {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Steps(-1)
	case "version":
	default:
		logging.Logger.Fatal("unknown command", zap.String("command", os.Args[1]))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logging.Logger.Fatal("migration failed", zap.String("error", err.Error()))
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logging.Logger.Fatal("failed to read migration version", zap.String("error", err.Error()))
	}

	logging.Logger.Info("migration complete", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
