package types

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HashLength is the size in bytes of every leaf, node and root hash.
const HashLength = 32

// Hash is a 32-byte digest. In transit artifacts it is serialized as lowercase
// hex without a 0x prefix; on the ledger it is stored as the raw bytes.
type Hash [HashLength]byte

// String returns the unprefixed hex encoding of the hash
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice
func (h Hash) Bytes() []byte {
	out := make([]byte, HashLength)
	copy(out, h[:])
	return out
}

// IsZero reports whether every byte of the hash is zero
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Compare orders two hashes as big-endian integers.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText implements encoding.TextMarshaler
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. A 0x prefix is tolerated.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashFromHex parses a 64 character hex string, with or without a 0x prefix.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	if !has0xPrefix(s) {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex %q: %w", s, err)
	}
	if len(raw) != HashLength {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashLength, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashesFromHex parses a list of hex-encoded hashes.
func HashesFromHex(values []string) ([]Hash, error) {
	out := make([]Hash, len(values))
	for i, v := range values {
		h, err := HashFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = h
	}
	return out, nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Record is one credential holder: field name to value, where a nil value
// represents an absent (null) field. Records are never mutated once built.
type Record map[string]*string

// Get returns the value of a field and whether it is present and non-null.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// With returns a copy of the record with field set to value.
func (r Record) With(field string, value *string) Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[field] = value
	return out
}

// StringPtr returns a pointer to s, for building records inline.
func StringPtr(s string) *string {
	return &s
}

// Standard record fields produced by the CSV ingest path.
const (
	FieldName     = "name"
	FieldEnroll   = "enroll"
	FieldEmail    = "email"
	FieldPosition = "position"
)

// EventKey addresses one issued batch on the ledger. It is derived from the
// issuer identity and the per-batch unique key.
type EventKey [HashLength]byte

// String returns the unprefixed hex encoding of the key
func (k EventKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler
func (k EventKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *EventKey) UnmarshalText(text []byte) error {
	h, err := HashFromHex(string(text))
	if err != nil {
		return fmt.Errorf("invalid event key: %w", err)
	}
	*k = EventKey(h)
	return nil
}
