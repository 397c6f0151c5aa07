package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	prometheusFleet "git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/prometheus"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("record not found")

// Collection is an ordered repository over one named collection.
// Values returned by reads are copies of the snapshot and must not be shared
// across goroutines while being modified.
type Collection[T any] struct {
	store *Store
	key   string
	idOf  func(T) string

	mu    sync.RWMutex
	items []T

	// version counts in-memory writes, persisted the last version the backend accepted.
	version   uint64
	persisted uint64
	persistMu sync.Mutex
}

// NewCollection registers a collection named key on store. idOf extracts the identifier
// used by GetByID and Update.
func NewCollection[T any](store *Store, key string, idOf func(T) string) *Collection[T] {
	collection := &Collection[T]{
		store: store,
		key:   key,
		idOf:  idOf,
	}

	store.register(collection)

	return collection
}

func (collection *Collection[T]) name() string {
	return collection.key
}

func (collection *Collection[T]) load(payload []byte) error {
	var items []T

	if len(payload) > 0 {
		err := json.Unmarshal(payload, &items)
		if err != nil {
			return err
		}
	}

	collection.mu.Lock()
	collection.items = items
	collection.mu.Unlock()

	return nil
}

// GetAll returns the collection in insertion order.
func (collection *Collection[T]) GetAll() []T {
	collection.mu.RLock()
	defer collection.mu.RUnlock()

	return append([]T(nil), collection.items...)
}

func (collection *Collection[T]) GetByID(id string) (T, error) {
	collection.mu.RLock()
	defer collection.mu.RUnlock()

	for _, item := range collection.items {
		if collection.idOf(item) == id {
			return item, nil
		}
	}

	var zero T

	return zero, fmt.Errorf("%w: %s %s", ErrNotFound, collection.key, id)
}

// Find returns the items matching predicate in insertion order.
func (collection *Collection[T]) Find(predicate func(T) bool) []T {
	collection.mu.RLock()
	defer collection.mu.RUnlock()

	var found []T

	for _, item := range collection.items {
		if predicate(item) {
			found = append(found, item)
		}
	}

	return found
}

func (collection *Collection[T]) Len() int {
	collection.mu.RLock()
	defer collection.mu.RUnlock()

	return len(collection.items)
}

// Save replaces the whole collection.
func (collection *Collection[T]) Save(ctx context.Context, items []T) error {
	collection.mu.Lock()
	collection.items = append([]T(nil), items...)
	collection.version++
	collection.mu.Unlock()

	return collection.commit(ctx, false)
}

func (collection *Collection[T]) Append(ctx context.Context, items ...T) error {
	collection.mu.Lock()
	collection.items = append(collection.items, items...)
	collection.version++
	collection.mu.Unlock()

	return collection.commit(ctx, false)
}

// Update applies mutate to a deep copy of the record with the given id and stores
// the result. When mutate returns an error nothing is changed.
func (collection *Collection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	var zero T

	collection.mu.Lock()

	idx := collection.indexOf(id)
	if idx < 0 {
		collection.mu.Unlock()
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, collection.key, id)
	}

	updated, err := deepCopy(collection.items[idx])
	if err != nil {
		collection.mu.Unlock()
		return zero, err
	}

	err = mutate(&updated)
	if err != nil {
		collection.mu.Unlock()
		return zero, err
	}

	collection.items[idx] = updated
	collection.version++
	collection.mu.Unlock()

	return updated, collection.commit(ctx, false)
}

// Upsert updates the record with the given id or appends create() when absent.
// It reports whether a new record was inserted.
func (collection *Collection[T]) Upsert(
	ctx context.Context,
	id string,
	create func() T,
	mutate func(*T) error,
) (T, bool, error) {
	var zero T

	collection.mu.Lock()

	idx := collection.indexOf(id)
	inserted := idx < 0

	var (
		record T
		err    error
	)

	if inserted {
		record = create()
	} else {
		record, err = deepCopy(collection.items[idx])
		if err != nil {
			collection.mu.Unlock()
			return zero, false, err
		}
	}

	err = mutate(&record)
	if err != nil {
		collection.mu.Unlock()
		return zero, false, err
	}

	if inserted {
		collection.items = append(collection.items, record)
	} else {
		collection.items[idx] = record
	}

	collection.version++
	collection.mu.Unlock()

	return record, inserted, collection.commit(ctx, false)
}

// Delete removes the record with the given id, if any.
func (collection *Collection[T]) Delete(ctx context.Context, id string) error {
	collection.mu.Lock()

	idx := collection.indexOf(id)
	if idx < 0 {
		collection.mu.Unlock()
		return nil
	}

	collection.items = append(collection.items[:idx:idx], collection.items[idx+1:]...)
	collection.version++
	collection.mu.Unlock()

	return collection.commit(ctx, false)
}

func (collection *Collection[T]) indexOf(id string) int {
	for idx, item := range collection.items {
		if collection.idOf(item) == id {
			return idx
		}
	}

	return -1
}

// commit writes the latest snapshot through to the backend. Backend failures are
// logged and counted; only a forced flush returns them.
func (collection *Collection[T]) commit(ctx context.Context, force bool) error {
	collection.persistMu.Lock()
	defer collection.persistMu.Unlock()

	collection.mu.RLock()
	version := collection.version

	if version == collection.persisted && !force {
		collection.mu.RUnlock()
		return nil
	}

	payload, err := json.Marshal(collection.items)
	collection.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("encode %s: %w", collection.key, err)
	}

	err = collection.store.Backend.Save(ctx, collection.key, payload)
	if err != nil {
		prometheusFleet.StoreWriteFailures.WithLabelValues(collection.key).Inc()
		logging.Logger.Warn("Write-through failed, collection kept in memory",
			zap.String("collection", collection.key),
			zap.String("backend", collection.store.Backend.Name()),
			zap.String("error", err.Error()),
		)

		if force {
			return fmt.Errorf("flush %s: %w", collection.key, err)
		}

		return nil
	}

	collection.persisted = version

	return nil
}

// Dirty reports whether the backend is behind the in-memory snapshot.
func (collection *Collection[T]) Dirty() bool {
	collection.persistMu.Lock()
	defer collection.persistMu.Unlock()

	collection.mu.RLock()
	defer collection.mu.RUnlock()

	return collection.version != collection.persisted
}

func deepCopy[T any](item T) (T, error) {
	var copied T

	payload, err := json.Marshal(item)
	if err != nil {
		return copied, err
	}

	err = json.Unmarshal(payload, &copied)

	return copied, err
}
