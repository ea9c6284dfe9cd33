// Package batch holds the value object that summarizes one committed batch:
// its root, its size and the presence bitmap handed to claim tracking.
package batch

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// headerLength is the fixed part of the binary layout: root || leafCount
const headerLength = types.HashLength + 4

// Descriptor is created once at the end of issuance and never changed by the
// commitment code afterwards.
type Descriptor struct {
	Root types.Hash

	LeafCount uint32

	// PresenceBitmap has one bit per record in original order, LSB first in
	// each byte. It is allocated zero-filled here and owned by the claim
	// tracker from then on.
	PresenceBitmap []byte
}

// BitmapLength returns the number of bitmap bytes for leafCount records.
func BitmapLength(leafCount uint32) int {
	return int((uint64(leafCount) + 7) / 8)
}

// NewDescriptor builds the descriptor for a finished tree.
func NewDescriptor(tree *merkle.MerkleTree) (*Descriptor, error) {
	if tree == nil {
		return nil, fmt.Errorf("cannot describe nil tree")
	}
	count := tree.LeafCount()
	if uint64(count) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("batch of %d records exceeds the maximum batch size", count)
	}
	return &Descriptor{
		Root:           tree.Root(),
		LeafCount:      uint32(count),
		PresenceBitmap: make([]byte, BitmapLength(uint32(count))),
	}, nil
}

// Equal reports whether two descriptors carry identical values.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Root == other.Root &&
		d.LeafCount == other.LeafCount &&
		bytes.Equal(d.PresenceBitmap, other.PresenceBitmap)
}

// Validate checks the descriptor invariants.
func (d *Descriptor) Validate() error {
	if d.LeafCount < 1 {
		return fmt.Errorf("leaf count must be at least 1")
	}
	if want := BitmapLength(d.LeafCount); len(d.PresenceBitmap) != want {
		return fmt.Errorf("presence bitmap must be %d bytes for %d records, got %d", want, d.LeafCount, len(d.PresenceBitmap))
	}
	return nil
}

// MarshalBinary encodes the descriptor as root[32] || leafCount (uint32 LE) || bitmap.
func (d *Descriptor) MarshalBinary() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}
	out := make([]byte, headerLength+len(d.PresenceBitmap))
	copy(out, d.Root[:])
	binary.LittleEndian.PutUint32(out[types.HashLength:headerLength], d.LeafCount)
	copy(out[headerLength:], d.PresenceBitmap)
	return out, nil
}

// UnmarshalBinary decodes the layout written by MarshalBinary.
func (d *Descriptor) UnmarshalBinary(data []byte) error {
	if len(data) < headerLength {
		return fmt.Errorf("descriptor must be at least %d bytes, got %d", headerLength, len(data))
	}
	var decoded Descriptor
	copy(decoded.Root[:], data[:types.HashLength])
	decoded.LeafCount = binary.LittleEndian.Uint32(data[types.HashLength:headerLength])
	decoded.PresenceBitmap = append([]byte{}, data[headerLength:]...)
	if err := decoded.Validate(); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	*d = decoded
	return nil
}

type descriptorJSON struct {
	Root           types.Hash `json:"root"`
	LeafCount      uint32     `json:"leafCount"`
	PresenceBitmap []int      `json:"presenceBitmap"`
}

// MarshalJSON writes the root as hex and the bitmap as a list of byte values,
// the shape ledger clients send the bitmap in.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	bitmap := make([]int, len(d.PresenceBitmap))
	for i, b := range d.PresenceBitmap {
		bitmap[i] = int(b)
	}
	return json.Marshal(descriptorJSON{
		Root:           d.Root,
		LeafCount:      d.LeafCount,
		PresenceBitmap: bitmap,
	})
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw descriptorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	bitmap := make([]byte, len(raw.PresenceBitmap))
	for i, v := range raw.PresenceBitmap {
		if v < 0 || v > 0xff {
			return fmt.Errorf("bitmap byte %d out of range: %d", i, v)
		}
		bitmap[i] = byte(v)
	}
	decoded := Descriptor{Root: raw.Root, LeafCount: raw.LeafCount, PresenceBitmap: bitmap}
	if err := decoded.Validate(); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	*d = decoded
	return nil
}
