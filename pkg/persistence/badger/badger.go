package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixEvent       = "event:"
	keyPrefixContent     = "content:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a production-ready persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newStoreLog(logger)
	opts.SyncWrites = true // a root that was reported anchored must survive a crash
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger database at %s", absPath)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func eventKey(key types.EventKey) []byte {
	return []byte(keyPrefixEvent + key.String())
}

func contentKey(cid string) []byte {
	return []byte(keyPrefixContent + cid)
}

// get copies the value stored at key, returning nil when absent
func (b *BadgerPersistence) get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	return data, err
}

// SaveEvent persists an event
func (b *BadgerPersistence) SaveEvent(_ context.Context, event *persistence.EventRecord) error {
	if event == nil {
		return fmt.Errorf("cannot save nil EventRecord")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalEventRecord(event)
	if err != nil {
		return fmt.Errorf("failed to marshal EventRecord: %w", err)
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(eventKey(event.Key), data)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save event %s", event.Key)
	}
	return nil
}

// LoadEvent retrieves an event by key
func (b *BadgerPersistence) LoadEvent(_ context.Context, key types.EventKey) (*persistence.EventRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := b.get(eventKey(key))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load event %s", key)
	}
	if data == nil {
		return nil, nil // Not found
	}

	event, err := persistence.UnmarshalEventRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal EventRecord: %w", err)
	}
	return event, nil
}

// ListEvents returns all events of an issuer sorted by unique key
func (b *BadgerPersistence) ListEvents(_ context.Context, issuer string) ([]*persistence.EventRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	events := make([]*persistence.EventRecord, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixEvent)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			event, err := persistence.UnmarshalEventRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal EventRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			if event.Issuer == issuer {
				events = append(events, event)
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].UniqueKey < events[j].UniqueKey
	})

	return events, nil
}

// PutContent stores a blob under its content identifier
func (b *BadgerPersistence) PutContent(_ context.Context, data []byte) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", fmt.Errorf("persistence layer is closed")
	}

	cid := persistence.ContentID(data)
	stored, err := persistence.EncodeContent(data)
	if err != nil {
		return "", err
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(contentKey(cid), stored)
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to store content %s", cid)
	}
	return cid, nil
}

// GetContent retrieves a blob by content identifier
func (b *BadgerPersistence) GetContent(_ context.Context, cid string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	stored, err := b.get(contentKey(cid))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load content %s", cid)
	}
	if stored == nil {
		return nil, nil
	}
	return persistence.DecodeContent(cid, stored)
}

// Close cleanly shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
