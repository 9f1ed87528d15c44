package session

import "sync"

// Backend is a string-keyed blob store. Get reports whether the key existed.
type Backend interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// MemoryBackend keeps values in a map. Used in tests and as the fallback when
// no durable storage is available.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (b *MemoryBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}
