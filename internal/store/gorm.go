package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidKVCollectionResult = errors.New("invalid result type, it should be pointer to KVCollection")

// KVCollection is one stored collection serialized as a JSON array.
type KVCollection struct {
	Name      string         `gorm:"column:name;type:varchar(64);primaryKey;not null"`
	Payload   datatypes.JSON `gorm:"column:payload;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (KVCollection) TableName() string {
	return "kv_collections"
}

type GormBackend struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

// NewGormBackend wraps dbConn. autoMigrate creates kv_collections when missing,
// used for sqlite where no migration step runs.
func NewGormBackend(dbConn *gorm.DB, autoMigrate bool) (*GormBackend, error) {
	if autoMigrate {
		err := dbConn.AutoMigrate(&KVCollection{})
		if err != nil {
			logging.Logger.Error("Failed to migrate kv_collections", zap.String("error", err.Error()))
			return nil, err
		}
	}

	return &GormBackend{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](database.GetCircuitBreakerSettings()),
	}, nil
}

func (gormBackend *GormBackend) Name() string {
	return gormBackend.DBConn.Dialector.Name()
}

func (gormBackend *GormBackend) Load(ctx context.Context, collection string) ([]byte, error) {
	result, err := gormBackend.CircuitBreaker.Execute(func() (any, error) {
		var record KVCollection

		err := gormBackend.DBConn.WithContext(ctx).
			Where("name = ?", collection).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &record, nil
		}

		if err != nil {
			logging.Logger.Error("[Load] Failed to fetch collection",
				zap.String("collection", collection),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	record, ok := result.(*KVCollection)
	if !ok {
		return nil, ErrInvalidKVCollectionResult
	}

	if len(record.Payload) == 0 {
		return nil, nil
	}

	return record.Payload, nil
}

func (gormBackend *GormBackend) Save(ctx context.Context, collection string, payload []byte) error {
	_, err := gormBackend.CircuitBreaker.Execute(func() (any, error) {
		record := KVCollection{
			Name:      collection,
			Payload:   datatypes.JSON(payload),
			UpdatedAt: time.Now(),
		}

		err := gormBackend.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
			}).
			Create(&record).Error
		if err != nil {
			logging.Logger.Error("[Save] Failed to upsert collection",
				zap.String("collection", collection),
				zap.Int("payload_size", len(payload)),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return nil
}

func (gormBackend *GormBackend) Ping(ctx context.Context) error {
	sqlDB, err := gormBackend.DBConn.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func (gormBackend *GormBackend) Close() error {
	sqlDB, err := gormBackend.DBConn.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
