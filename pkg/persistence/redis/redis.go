package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixEvent       = "forj:event:"
	keyPrefixContent     = "forj:content:"
	keyPrefixIssuerIndex = "forj:events:issuer:"
	keySchemaVersion     = "forj:metadata:schema_version"
	currentSchemaVersion = "v1"
)

// RedisPersistence is a persistence implementation using Redis, suitable for
// running several servers against one shared ledger.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "tenant1:" gives
	// "tenant1:forj:event:<key>".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

func (r *RedisPersistence) eventKey(key types.EventKey) string {
	return r.prefixKey(keyPrefixEvent + key.String())
}

func (r *RedisPersistence) issuerIndexKey(issuer string) string {
	return r.prefixKey(keyPrefixIssuerIndex + issuer)
}

func (r *RedisPersistence) contentKey(cid string) string {
	return r.prefixKey(keyPrefixContent + cid)
}

// SaveEvent persists an event and indexes it under its issuer
func (r *RedisPersistence) SaveEvent(ctx context.Context, event *persistence.EventRecord) error {
	if event == nil {
		return fmt.Errorf("cannot save nil EventRecord")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalEventRecord(event)
	if err != nil {
		return fmt.Errorf("failed to marshal EventRecord: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.eventKey(event.Key), data, 0)
	pipe.SAdd(ctx, r.issuerIndexKey(event.Issuer), event.Key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to save event %s", event.Key)
	}
	return nil
}

// LoadEvent retrieves an event by key
func (r *RedisPersistence) LoadEvent(ctx context.Context, key types.EventKey) (*persistence.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := r.client.Get(ctx, r.eventKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load event %s", key)
	}

	event, err := persistence.UnmarshalEventRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal EventRecord: %w", err)
	}
	return event, nil
}

// ListEvents returns all events of an issuer sorted by unique key
func (r *RedisPersistence) ListEvents(ctx context.Context, issuer string) ([]*persistence.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	members, err := r.client.SMembers(ctx, r.issuerIndexKey(issuer)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read event index for %s", issuer)
	}

	events := make([]*persistence.EventRecord, 0, len(members))
	if len(members) == 0 {
		return events, nil
	}

	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = r.prefixKey(keyPrefixEvent + member)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load events for %s", issuer)
	}

	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			r.logger.Sugar().Warnw("Indexed event missing, skipping", "key", keys[i])
			continue
		}
		event, err := persistence.UnmarshalEventRecord([]byte(str))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal EventRecord, skipping", "key", keys[i], "error", err)
			continue
		}
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].UniqueKey < events[j].UniqueKey
	})

	return events, nil
}

// PutContent stores a blob under its content identifier
func (r *RedisPersistence) PutContent(ctx context.Context, data []byte) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", fmt.Errorf("persistence layer is closed")
	}

	cid := persistence.ContentID(data)
	stored, err := persistence.EncodeContent(data)
	if err != nil {
		return "", err
	}

	if err := r.client.Set(ctx, r.contentKey(cid), stored, 0).Err(); err != nil {
		return "", errors.Wrapf(err, "failed to store content %s", cid)
	}
	return cid, nil
}

// GetContent retrieves a blob by content identifier
func (r *RedisPersistence) GetContent(ctx context.Context, cid string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	stored, err := r.client.Get(ctx, r.contentKey(cid)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load content %s", cid)
	}
	return persistence.DecodeContent(cid, stored)
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
