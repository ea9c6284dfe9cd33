package artifacts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

func sampleRecords() []types.Record {
	return []types.Record{
		{"name": types.StringPtr("Ann"), "email": types.StringPtr("ann@example.com"), "position": nil},
		{"name": types.StringPtr("Bob"), "email": types.StringPtr("bob@example.com"), "position": types.StringPtr("2")},
		{"name": types.StringPtr("Cy"), "email": types.StringPtr("cy@example.com"), "position": nil},
	}
}

func TestProofsRoundTripAndVerify(t *testing.T) {
	records := sampleRecords()
	tree, err := merkle.BuildFromRecords(records)
	require.NoError(t, err)
	proofs, err := tree.GenerateAllProofs()
	require.NoError(t, err)

	data, err := EncodeProofs(proofs)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(data), "0x"))

	decoded, err := DecodeProofs(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(records))

	for i, r := range records {
		require.Equal(t, proofs[i].Siblings, decoded[i])
		require.True(t, merkle.Verify(r, decoded[i], tree.Root()))
	}
}

func TestEncodeProofsSingleLeaf(t *testing.T) {
	tree, err := merkle.BuildFromRecords(sampleRecords()[:1])
	require.NoError(t, err)
	proofs, err := tree.GenerateAllProofs()
	require.NoError(t, err)

	data, err := EncodeProofs(proofs)
	require.NoError(t, err)
	require.Equal(t, "[[]]", string(data))
}

func TestEncodeProofsRejectsMisplacedProof(t *testing.T) {
	tree, err := merkle.BuildFromRecords(sampleRecords())
	require.NoError(t, err)
	proofs, err := tree.GenerateAllProofs()
	require.NoError(t, err)

	proofs[0], proofs[1] = proofs[1], proofs[0]
	_, err = EncodeProofs(proofs)
	require.Error(t, err)

	_, err = EncodeProofs([]*merkle.MerkleProof{nil})
	require.Error(t, err)
}

func TestDecodeProofsAcceptsPrefixedHex(t *testing.T) {
	h := merkle.LeafHash([]byte("x"))
	decoded, err := DecodeProofs([]byte(`[["0x` + h.String() + `"]]`))
	require.NoError(t, err)
	require.Equal(t, [][]types.Hash{{h}}, decoded)

	_, err = DecodeProofs([]byte(`[["zz"]]`))
	require.Error(t, err)
	_, err = DecodeProofs([]byte(`{}`))
	require.Error(t, err)
}

func TestRecordsRoundTrip(t *testing.T) {
	records := sampleRecords()
	data, err := EncodeRecords(records)
	require.NoError(t, err)
	require.Contains(t, string(data), `"position":null`)

	decoded, err := DecodeRecords(data)
	require.NoError(t, err)
	require.Equal(t, records, decoded)

	_, err = DecodeRecords([]byte(`[null]`))
	require.Error(t, err)
	_, err = DecodeRecords([]byte(`[{"name":1}]`))
	require.Error(t, err)
}

func TestLocateRecord(t *testing.T) {
	records := sampleRecords()

	idx, err := LocateRecord(records, "email", "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	_, err = LocateRecord(records, "email", "nobody@example.com")
	require.ErrorIs(t, err, ErrRecordNotFound)

	// Null fields never match, not even the empty string
	_, err = LocateRecord(records, "position", "")
	require.ErrorIs(t, err, ErrRecordNotFound)

	// Exact match only
	_, err = LocateRecord(records, "email", "BOB@example.com")
	require.ErrorIs(t, err, ErrRecordNotFound)

	duplicated := append(sampleRecords(), types.Record{"name": types.StringPtr("Ann 2"), "email": types.StringPtr("ann@example.com")})
	idx, err = LocateRecord(duplicated, "email", "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, 3, idx)
}
