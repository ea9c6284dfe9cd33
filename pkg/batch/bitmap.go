package batch

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Bitmap is the claim tracker's view of a presence bitmap. The commitment
// code never uses it; it exists for the collaborator that marks records
// as claimed.
type Bitmap struct {
	bits   *bitset.BitSet
	length uint
}

// NewBitmap returns an all-zero bitmap for length records.
func NewBitmap(length uint) *Bitmap {
	return &Bitmap{bits: bitset.MustNew(length), length: length}
}

// BitmapFromBytes decodes the serialized layout: bit i is bit i%8 of byte i/8.
func BitmapFromBytes(data []byte, length uint) (*Bitmap, error) {
	if want := BitmapLength(uint32(length)); len(data) != want {
		return nil, fmt.Errorf("bitmap must be %d bytes for %d records, got %d", want, length, len(data))
	}
	bm := NewBitmap(length)
	for i := uint(0); i < length; i++ {
		if data[i/8]&(1<<(i%8)) != 0 {
			bm.bits.Set(i)
		}
	}
	// Padding bits past length must be clear
	if length%8 != 0 && data[len(data)-1]>>(length%8) != 0 {
		return nil, fmt.Errorf("bitmap has bits set beyond record %d", length-1)
	}
	return bm, nil
}

// Bytes encodes the bitmap in the serialized layout.
func (b *Bitmap) Bytes() []byte {
	out := make([]byte, BitmapLength(uint32(b.length)))
	for i := uint(0); i < b.length; i++ {
		if b.bits.Test(i) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// Len returns the number of records the bitmap covers.
func (b *Bitmap) Len() uint {
	return b.length
}

// IsSet reports whether record i is marked.
func (b *Bitmap) IsSet(i uint) bool {
	return i < b.length && b.bits.Test(i)
}

// Set marks record i.
func (b *Bitmap) Set(i uint) error {
	if i >= b.length {
		return fmt.Errorf("bit %d out of range for %d records", i, b.length)
	}
	b.bits.Set(i)
	return nil
}

// Count returns the number of marked records.
func (b *Bitmap) Count() uint {
	return b.bits.Count()
}
