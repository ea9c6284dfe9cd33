package persistence

import (
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// EventRecord is the ledger entry for one anchored batch.
type EventRecord struct {
	// Key is derived from Issuer and UniqueKey and addresses the entry
	Key types.EventKey `json:"key"`

	Issuer    string `json:"issuer"`
	UniqueKey uint64 `json:"uniqueKey"`

	EventName string `json:"eventName"`
	EventID   uint64 `json:"eventId"`

	// BatchSize is the number of records committed under MerkleRoot
	BatchSize uint32 `json:"batchSize"`

	// BitMap marks claimed records, bit i LSB-first in byte i/8
	BitMap []byte `json:"bitMap"`

	MerkleRoot types.Hash `json:"merkleRoot"`

	// HashScheme names the leaf/node hashing the root was built with
	HashScheme string `json:"hashScheme,omitempty"`

	IssuedTimestamp int64 `json:"issuedTimestamp"`

	MetadataURI    string `json:"metadataUri"`
	TemplateURI    string `json:"templateUri"`
	MerkleProofURI string `json:"merkleProofUri"`

	RemainingCerts uint64 `json:"remainingCerts"`
	IssuedCerts    uint64 `json:"issuedCerts"`
}

// Clone returns a deep copy of the event.
func (e *EventRecord) Clone() *EventRecord {
	if e == nil {
		return nil
	}
	out := *e
	out.BitMap = append([]byte(nil), e.BitMap...)
	return &out
}
