package batch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapLayout(t *testing.T) {
	bm := NewBitmap(10)
	require.NoError(t, bm.Set(0))
	require.NoError(t, bm.Set(3))
	require.NoError(t, bm.Set(9))

	// bit i is bit i%8 of byte i/8, least significant first
	require.Equal(t, []byte{0x09, 0x02}, bm.Bytes())
	require.Equal(t, uint(3), bm.Count())
	require.True(t, bm.IsSet(3))
	require.False(t, bm.IsSet(4))
	require.False(t, bm.IsSet(100))

	require.Error(t, bm.Set(10))
}

func TestBitmapFromBytes(t *testing.T) {
	bm, err := BitmapFromBytes([]byte{0x09, 0x02}, 10)
	require.NoError(t, err)
	require.True(t, bm.IsSet(0))
	require.True(t, bm.IsSet(3))
	require.True(t, bm.IsSet(9))
	require.Equal(t, uint(3), bm.Count())
	require.Equal(t, []byte{0x09, 0x02}, bm.Bytes())

	_, err = BitmapFromBytes([]byte{0x00}, 10)
	require.Error(t, err)

	// bit 10 lies in the padding of a 10 record bitmap
	_, err = BitmapFromBytes([]byte{0x00, 0x04}, 10)
	require.Error(t, err)
}
