package store

import (
	"context"
	"errors"
	"sync"
)

var ErrBackendUnavailable = errors.New("durable backend unavailable")

// Backend is flat get/set storage keyed by collection name.
// Load returns nil payload and nil error for a collection that was never saved.
type Backend interface {
	Name() string
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, payload []byte) error
	Ping(ctx context.Context) error
	Close() error
}

type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (memoryBackend *MemoryBackend) Name() string {
	return "memory"
}

func (memoryBackend *MemoryBackend) Load(_ context.Context, collection string) ([]byte, error) {
	memoryBackend.mu.RLock()
	defer memoryBackend.mu.RUnlock()

	payload, ok := memoryBackend.data[collection]
	if !ok {
		return nil, nil
	}

	return append([]byte(nil), payload...), nil
}

func (memoryBackend *MemoryBackend) Save(_ context.Context, collection string, payload []byte) error {
	memoryBackend.mu.Lock()
	defer memoryBackend.mu.Unlock()

	memoryBackend.data[collection] = append([]byte(nil), payload...)

	return nil
}

func (memoryBackend *MemoryBackend) Ping(context.Context) error {
	return nil
}

func (memoryBackend *MemoryBackend) Close() error {
	return nil
}
