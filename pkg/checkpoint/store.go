package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound indicates no checkpoint exists for the key.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidEntry indicates a stored checkpoint could not be decoded.
	ErrInvalidEntry = errors.New("invalid checkpoint entry")
)

// Store persists cursors by key.
type Store interface {
	// Load returns the entry for key or ErrNotFound.
	Load(ctx context.Context, key Key) (*Entry, error)

	// Save stores cursor for key, replacing any previous entry.
	Save(ctx context.Context, key Key, cursor string) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key Key) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key.String()]
	if !ok {
		Operations.WithLabelValues("memory", "load", "miss").Inc()
		return nil, ErrNotFound
	}
	Operations.WithLabelValues("memory", "load", "ok").Inc()
	return &entry, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key Key, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	prev := m.entries[k]
	m.entries[k] = Entry{Cursor: cursor, SavedAt: m.now(), Saves: prev.Saves + 1}
	Operations.WithLabelValues("memory", "save", "ok").Inc()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key.String())
	Operations.WithLabelValues("memory", "delete", "ok").Inc()
	return nil
}
