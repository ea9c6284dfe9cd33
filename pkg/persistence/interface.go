package persistence

import (
	"context"

	"github.com/Layr-Labs/forj-go/pkg/types"
)

// IEventStore stores the ledger entry of every anchored batch, addressed by
// its event key.
type IEventStore interface {
	// SaveEvent persists an event, overwriting any entry with the same key.
	SaveEvent(ctx context.Context, event *EventRecord) error

	// LoadEvent retrieves an event by key.
	// Returns nil if the event doesn't exist, error only on storage failure.
	LoadEvent(ctx context.Context, key types.EventKey) (*EventRecord, error)

	// ListEvents returns all events of one issuer sorted by unique key.
	// Returns empty slice if none exist, error only on storage failure.
	ListEvents(ctx context.Context, issuer string) ([]*EventRecord, error)
}

// IContentStore is content-addressed blob storage for batch artifacts.
type IContentStore interface {
	// PutContent stores data and returns its content identifier.
	// Storing the same bytes twice returns the same identifier.
	PutContent(ctx context.Context, data []byte) (string, error)

	// GetContent retrieves data by content identifier.
	// Returns nil if the content doesn't exist, error only on storage failure
	// or when the stored bytes no longer match the identifier.
	GetContent(ctx context.Context, cid string) ([]byte, error)
}

// IForjPersistence is the storage the forj server runs on. All
// implementations must be thread-safe.
type IForjPersistence interface {
	IEventStore
	IContentStore

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
