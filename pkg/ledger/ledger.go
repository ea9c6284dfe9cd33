// Package ledger anchors batch descriptors and tracks which records of a
// batch have been claimed. It plays the part of the on-chain program: one
// entry per (issuer, unique key), written once, then only claim bits and
// counters change.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/batch"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// Limits on the stored entry
const (
	MaxEventNameLength = 100
	MaxURILength       = 128
	MaxBitmapLength    = 128
	MaxBatchSize       = MaxBitmapLength * 8
)

var (
	ErrEventExists    = errors.New("event already initialized")
	ErrEventNotFound  = errors.New("event not found")
	ErrAlreadyClaimed = errors.New("certificate already claimed")
	ErrCertOutOfRange = errors.New("certificate id out of range")
	ErrInvalidIssuer  = errors.New("issuer must be a hex address")
)

var eventSeed = []byte("event")

// DeriveEventKey returns keccak256("event" || issuer || uniqueKey LE), the
// address of an issuer's event entry.
func DeriveEventKey(issuer string, uniqueKey uint64) (types.EventKey, error) {
	if !common.IsHexAddress(issuer) {
		return types.EventKey{}, fmt.Errorf("%w: %q", ErrInvalidIssuer, issuer)
	}
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], uniqueKey)

	var key types.EventKey
	copy(key[:], crypto.Keccak256(eventSeed, common.HexToAddress(issuer).Bytes(), le[:]))
	return key, nil
}

// NormalizeIssuer returns the checksummed form of an issuer address.
func NormalizeIssuer(issuer string) (string, error) {
	if !common.IsHexAddress(issuer) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIssuer, issuer)
	}
	return common.HexToAddress(issuer).Hex(), nil
}

// InitEventParams describes a batch to anchor.
type InitEventParams struct {
	Issuer    string
	UniqueKey uint64
	EventName string
	EventID   uint64

	Descriptor *batch.Descriptor
	HashScheme string

	MetadataURI    string
	TemplateURI    string
	MerkleProofURI string
}

// Ledger serializes writes to an event store. Claims read, flip and write an
// entry, so all of them go through one mutex.
type Ledger struct {
	store  persistence.IEventStore
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewLedger returns a ledger over store.
func NewLedger(store persistence.IEventStore, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (p *InitEventParams) validate() error {
	if p.Descriptor == nil {
		return fmt.Errorf("descriptor is required")
	}
	if err := p.Descriptor.Validate(); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	if p.Descriptor.LeafCount > MaxBatchSize {
		return fmt.Errorf("batch of %d records exceeds the maximum of %d", p.Descriptor.LeafCount, MaxBatchSize)
	}
	if len(p.EventName) > MaxEventNameLength {
		return fmt.Errorf("event name must be at most %d bytes", MaxEventNameLength)
	}
	for name, uri := range map[string]string{
		"metadata uri":     p.MetadataURI,
		"template uri":     p.TemplateURI,
		"merkle proof uri": p.MerkleProofURI,
	} {
		if len(uri) > MaxURILength {
			return fmt.Errorf("%s must be at most %d bytes", name, MaxURILength)
		}
	}
	return nil
}

// InitEvent anchors a new batch. Each (issuer, unique key) can be used once.
func (l *Ledger) InitEvent(ctx context.Context, params *InitEventParams) (*persistence.EventRecord, error) {
	if params == nil {
		return nil, fmt.Errorf("init event params cannot be nil")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	issuer, err := NormalizeIssuer(params.Issuer)
	if err != nil {
		return nil, err
	}
	key, err := DeriveEventKey(issuer, params.UniqueKey)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.store.LoadEvent(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: issuer %s key %d", ErrEventExists, issuer, params.UniqueKey)
	}

	d := params.Descriptor
	event := &persistence.EventRecord{
		Key:             key,
		Issuer:          issuer,
		UniqueKey:       params.UniqueKey,
		EventName:       params.EventName,
		EventID:         params.EventID,
		BatchSize:       d.LeafCount,
		BitMap:          append([]byte(nil), d.PresenceBitmap...),
		MerkleRoot:      d.Root,
		HashScheme:      params.HashScheme,
		IssuedTimestamp: l.now().Unix(),
		MetadataURI:     params.MetadataURI,
		TemplateURI:     params.TemplateURI,
		MerkleProofURI:  params.MerkleProofURI,
		RemainingCerts:  uint64(d.LeafCount),
	}
	if err := l.store.SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to save event: %w", err)
	}

	l.logger.Sugar().Infow("Event initialized",
		"issuer", event.Issuer,
		"unique_key", event.UniqueKey,
		"batch_size", event.BatchSize,
		"root", event.MerkleRoot.String(),
	)
	return event.Clone(), nil
}

// GetEvent loads the entry for (issuer, uniqueKey).
func (l *Ledger) GetEvent(ctx context.Context, issuer string, uniqueKey uint64) (*persistence.EventRecord, error) {
	key, err := DeriveEventKey(issuer, uniqueKey)
	if err != nil {
		return nil, err
	}
	return l.loadEvent(ctx, key, issuer, uniqueKey)
}

func (l *Ledger) loadEvent(ctx context.Context, key types.EventKey, issuer string, uniqueKey uint64) (*persistence.EventRecord, error) {
	event, err := l.store.LoadEvent(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: issuer %s key %d", ErrEventNotFound, issuer, uniqueKey)
	}
	return event, nil
}

// ListEvents returns every event of an issuer ordered by unique key.
func (l *Ledger) ListEvents(ctx context.Context, issuer string) ([]*persistence.EventRecord, error) {
	normalized, err := NormalizeIssuer(issuer)
	if err != nil {
		return nil, err
	}
	return l.store.ListEvents(ctx, normalized)
}

// Claim marks record certID of the batch as claimed.
func (l *Ledger) Claim(ctx context.Context, issuer string, uniqueKey uint64, certID uint32) (*persistence.EventRecord, error) {
	key, err := DeriveEventKey(issuer, uniqueKey)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event, err := l.loadEvent(ctx, key, issuer, uniqueKey)
	if err != nil {
		return nil, err
	}
	if certID >= event.BatchSize {
		return nil, fmt.Errorf("%w: %d for batch of %d", ErrCertOutOfRange, certID, event.BatchSize)
	}

	bm, err := batch.BitmapFromBytes(event.BitMap, uint(event.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("stored bitmap is corrupt: %w", err)
	}
	if bm.IsSet(uint(certID)) {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyClaimed, certID)
	}
	if err := bm.Set(uint(certID)); err != nil {
		return nil, err
	}

	event.BitMap = bm.Bytes()
	event.IssuedCerts++
	if event.RemainingCerts > 0 {
		event.RemainingCerts--
	}
	if err := l.store.SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to save event: %w", err)
	}

	l.logger.Sugar().Infow("Certificate claimed",
		"issuer", issuer,
		"unique_key", uniqueKey,
		"cert_id", certID,
		"remaining", event.RemainingCerts,
	)
	return event.Clone(), nil
}
