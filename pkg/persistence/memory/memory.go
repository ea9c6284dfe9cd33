package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IForjPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Ledger entries: event key -> EventRecord
	events map[types.EventKey]*persistence.EventRecord

	// Content blobs: cid -> bytes
	content map[string][]byte

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		events:  make(map[types.EventKey]*persistence.EventRecord),
		content: make(map[string][]byte),
	}
}

// SaveEvent persists an event.
func (m *MemoryPersistence) SaveEvent(_ context.Context, event *persistence.EventRecord) error {
	if event == nil {
		return fmt.Errorf("cannot save nil EventRecord")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.events[event.Key] = event.Clone()
	return nil
}

// LoadEvent retrieves an event by key.
func (m *MemoryPersistence) LoadEvent(_ context.Context, key types.EventKey) (*persistence.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	event, exists := m.events[key]
	if !exists {
		return nil, nil // Not found is not an error
	}
	return event.Clone(), nil
}

// ListEvents returns all events of an issuer sorted by unique key.
func (m *MemoryPersistence) ListEvents(_ context.Context, issuer string) ([]*persistence.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*persistence.EventRecord, 0)
	for _, event := range m.events {
		if event.Issuer == issuer {
			result = append(result, event.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UniqueKey < result[j].UniqueKey
	})
	return result, nil
}

// PutContent stores a blob under its content identifier.
func (m *MemoryPersistence) PutContent(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", fmt.Errorf("persistence layer is closed")
	}

	cid := persistence.ContentID(data)
	m.content[cid] = append([]byte{}, data...)
	return cid, nil
}

// GetContent retrieves a blob by content identifier.
func (m *MemoryPersistence) GetContent(_ context.Context, cid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, exists := m.content[cid]
	if !exists {
		return nil, nil
	}
	return append([]byte{}, data...), nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
