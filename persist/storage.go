package persist

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNoSnapshot is returned by Storage.Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Storage is the device-local storage of the encoded state.
type Storage interface {
	// Load returns the last saved document or ErrNoSnapshot.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the saved document.
	Save(ctx context.Context, data []byte) error
}

// MemoryStorage keeps the document in memory. It is used in tests and when no file is
// configured.
type MemoryStorage struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	return slices.Clone(m.data), nil
}

func (m *MemoryStorage) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = slices.Clone(data)
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
