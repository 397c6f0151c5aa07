package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("driver not found")

type DriverService struct {
	Drivers  *store.Collection[Driver]
	validate *validator.Validate
}

func NewService(fleetStore *store.Store) *DriverService {
	return &DriverService{
		Drivers: store.NewCollection(fleetStore, store.DriversCollection, func(d Driver) string {
			return d.ID
		}),
		validate: validator.New(),
	}
}

func (driverService *DriverService) List() []Driver {
	return driverService.Drivers.GetAll()
}

func (driverService *DriverService) Get(id string) (Driver, error) {
	found, err := driverService.Drivers.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		return Driver{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return found, err
}

// Add registers a single manually entered driver.
func (driverService *DriverService) Add(ctx context.Context, name, phone, email string) (Driver, error) {
	row := Row{Name: name, PhoneNumber: phone, Email: email}

	err := driverService.validate.Struct(row)
	if err != nil {
		return Driver{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	row.PhoneNumber, err = NormalizePhone(row.PhoneNumber)
	if err != nil {
		return Driver{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	newDriver := fromRow(row, time.Now())

	err = driverService.Drivers.Append(ctx, newDriver)
	if err != nil {
		return Driver{}, err
	}

	logging.Logger.Info("driver added", zap.String("driver_id", newDriver.ID))

	return newDriver, nil
}

// Import parses a CSV roster. With replace the roster supersedes every stored
// driver, otherwise the rows are appended.
func (driverService *DriverService) Import(ctx context.Context, reader io.Reader, replace bool) ([]Driver, error) {
	rows, err := ParseCSV(reader)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	imported := make([]Driver, 0, len(rows))

	for _, row := range rows {
		err = driverService.validate.Struct(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}

		imported = append(imported, fromRow(row, now))
	}

	if replace {
		err = driverService.Drivers.Save(ctx, imported)
	} else {
		err = driverService.Drivers.Append(ctx, imported...)
	}

	if err != nil {
		return nil, err
	}

	logging.Logger.Info("drivers imported",
		zap.Int("count", len(imported)),
		zap.Bool("replace", replace),
	)

	return imported, nil
}

// Resolve returns the drivers for ids in the given order. Unknown ids are skipped.
func (driverService *DriverService) Resolve(ids []string) []Driver {
	byID := make(map[string]Driver)
	for _, d := range driverService.Drivers.GetAll() {
		byID[d.ID] = d
	}

	resolved := make([]Driver, 0, len(ids))

	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			logging.Logger.Warn("campaign target is not a known driver", zap.String("driver_id", id))
			continue
		}

		resolved = append(resolved, d)
	}

	return resolved
}

func fromRow(row Row, createdAt time.Time) Driver {
	return Driver{
		ID:          uuid.NewString(),
		Name:        row.Name,
		PhoneNumber: row.PhoneNumber,
		Email:       row.Email,
		CreatedAt:   createdAt,
	}
}
