package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"go.uber.org/zap"
)

// Collection names shared by the services.
const (
	DriversCollection     = "drivers"
	CampaignsCollection   = "campaigns"
	RecordingsCollection  = "recordings"
	TranscriptsCollection = "transcripts"
	DeadLettersCollection = "webhook_dead_letters"
)

type persistable interface {
	name() string
	load(payload []byte) error
	commit(ctx context.Context, force bool) error
}

// Store owns the process-wide snapshot of every registered collection.
// Memory is authoritative; each write goes through to the backend and a failed
// write leaves the collection dirty until the next write or Flush succeeds.
type Store struct {
	Backend Backend

	mu          sync.Mutex
	collections []persistable
}

func New(backend Backend) *Store {
	return &Store{Backend: backend}
}

func (store *Store) register(collection persistable) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.collections = append(store.collections, collection)
}

func (store *Store) registered() []persistable {
	store.mu.Lock()
	defer store.mu.Unlock()

	return append([]persistable(nil), store.collections...)
}

// Init loads every registered collection from the backend. A collection that
// fails to load stays empty; the returned error lists the failures.
func (store *Store) Init(ctx context.Context) error {
	var errs []error

	for _, collection := range store.registered() {
		payload, err := store.Backend.Load(ctx, collection.name())
		if err != nil {
			logging.Logger.Warn("[Init] Backend unavailable, starting with empty collection",
				zap.String("collection", collection.name()),
				zap.String("backend", store.Backend.Name()),
				zap.String("error", err.Error()),
			)

			errs = append(errs, fmt.Errorf("load %s: %w", collection.name(), err))

			continue
		}

		err = collection.load(payload)
		if err != nil {
			logging.Logger.Warn("[Init] Stored collection is not decodable, starting empty",
				zap.String("collection", collection.name()),
				zap.String("error", err.Error()),
			)

			errs = append(errs, fmt.Errorf("decode %s: %w", collection.name(), err))

			continue
		}

		logging.Logger.Info("[Init] Collection loaded",
			zap.String("collection", collection.name()),
			zap.String("backend", store.Backend.Name()),
		)
	}

	return errors.Join(errs...)
}

// Flush writes every collection back to the backend.
func (store *Store) Flush(ctx context.Context) error {
	var errs []error

	for _, collection := range store.registered() {
		err := collection.commit(ctx, true)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (store *Store) Close() error {
	return store.Backend.Close()
}
