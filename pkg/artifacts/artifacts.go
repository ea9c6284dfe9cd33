// Package artifacts encodes the batch files pinned to content storage at
// issuance: the record list and the positional proof list.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// ErrRecordNotFound means no record in the batch carries the identifying
// value. It signals that no credential was issued, which is different from a
// credential that fails verification.
var ErrRecordNotFound = errors.New("no credential for this identity")

// EncodeProofs writes proofs as a JSON array with one entry per leaf index,
// each entry an array of unprefixed hex sibling hashes.
func EncodeProofs(proofs []*merkle.MerkleProof) ([]byte, error) {
	out := make([][]types.Hash, len(proofs))
	for i, p := range proofs {
		if p == nil {
			return nil, fmt.Errorf("proof %d is nil", i)
		}
		if p.LeafIndex != i {
			return nil, fmt.Errorf("proof at position %d belongs to leaf %d", i, p.LeafIndex)
		}
		siblings := p.Siblings
		if siblings == nil {
			siblings = []types.Hash{}
		}
		out[i] = siblings
	}
	return marshal(out)
}

// DecodeProofs reads the layout written by EncodeProofs. Entries may carry a
// 0x prefix.
func DecodeProofs(data []byte) ([][]types.Hash, error) {
	var raw [][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse proof list: %w", err)
	}
	proofs := make([][]types.Hash, len(raw))
	for i, entry := range raw {
		siblings, err := types.HashesFromHex(entry)
		if err != nil {
			return nil, fmt.Errorf("proof %d: %w", i, err)
		}
		proofs[i] = siblings
	}
	return proofs, nil
}

// EncodeRecords writes the batch records as a JSON array of objects.
func EncodeRecords(records []types.Record) ([]byte, error) {
	return marshal(records)
}

// DecodeRecords reads a JSON array of objects whose values are strings or null.
func DecodeRecords(data []byte) ([]types.Record, error) {
	var records []types.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse record list: %w", err)
	}
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("record %d is null", i)
		}
	}
	return records, nil
}

// LocateRecord returns the index of the record whose field equals value.
// When several records match, the last one wins, as it did for every batch
// verified so far.
func LocateRecord(records []types.Record, field, value string) (int, error) {
	found := -1
	for i, r := range records {
		if v, ok := r.Get(field); ok && v == value {
			found = i
		}
	}
	if found < 0 {
		return -1, fmt.Errorf("%w: %s=%q", ErrRecordNotFound, field, value)
	}
	return found, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
