package database

import (
	"errors"
	"fmt"
	"net/url"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var ErrUnsupportedBackend = errors.New("unsupported database backend")

// NewDatabase opens the configured durable backend. The memory backend has no database.
func NewDatabase() (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch config.Conf.StoreBackend {
	case config.BackendPostgres:
		dialector = postgres.Open(GetDSN())
	case config.BackendSqlite:
		dialector = sqlite.Open(config.Conf.SqlitePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, config.Conf.StoreBackend)
	}

	return Open(dialector)
}

func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	gormLoggerInstance := gormLogger.Default.LogMode(gormLogger.Silent)

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLoggerInstance,
	})
	if err != nil {
		logging.Logger.Error("Failed to connect to database",
			zap.String("dialect", dialector.Name()),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	sqldatabase, err := database.DB()
	if err != nil {
		logging.Logger.Error("Failed to get sql.database from GORM", zap.String("error", err.Error()))
		return nil, err
	}

	err = sqldatabase.Ping()
	if err != nil {
		logging.Logger.Error("Failed to ping database",
			zap.String("dialect", dialector.Name()),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to database", zap.String("dialect", dialector.Name()))

	return database, nil
}

func GetDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s",
		config.Conf.PostgresHost,
		config.Conf.PostgresUsername,
		config.Conf.PostgresPassword,
		config.Conf.PostgresDatabase,
		config.Conf.PostgresPort,
	)
}

func GetURL() string {
	dbUrl := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(config.Conf.PostgresUsername, config.Conf.PostgresPassword),
		Host:   fmt.Sprintf("%s:%s", config.Conf.PostgresHost, config.Conf.PostgresPort),
		Path:   config.Conf.PostgresDatabase,
	}
	queries := url.Values{}
	queries.Add("sslmode", "disable")
	dbUrl.RawQuery = queries.Encode()

	return dbUrl.String()
}

func GetCircuitBreakerSettings() gobreaker.Settings {
	return circuitbreak.NewSettings(
		circuitbreak.DBService,
		config.Conf.DBIntervalCB,
		config.Conf.DBConsecutiveFailuresCB,
		nil,
	)
}
