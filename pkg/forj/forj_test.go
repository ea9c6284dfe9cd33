package forj

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

func TestRoundTrip(t *testing.T) {
	records := []types.Record{
		{"name": types.StringPtr("Ann"), "email": types.StringPtr("ann@example.com"), "position": nil},
		{"name": types.StringPtr("Bob"), "email": types.StringPtr("bob@example.com"), "position": types.StringPtr("1")},
		{"name": types.StringPtr("Cy"), "email": types.StringPtr("cy@example.com"), "position": nil},
	}

	leaves := make([]types.Hash, len(records))
	for i, r := range records {
		leaves[i] = merkle.LeafHash(Canonicalize(r))
	}

	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	for i, r := range records {
		proof, err := GetProof(tree, i)
		require.NoError(t, err)
		require.True(t, Verify(r, proof, tree.Root()))
	}

	_, err = GetProof(tree, len(records))
	require.ErrorIs(t, err, merkle.ErrIndexOutOfRange)

	_, err = BuildTree(nil)
	require.ErrorIs(t, err, merkle.ErrEmptyBatch)
}

func TestVerify_RejectsRecordDifferingInInvalidBytes(t *testing.T) {
	issued := types.Record{"id": types.StringPtr("\xff")}
	forged := types.Record{"id": types.StringPtr("\xfe")}

	tree, err := BuildTree([]types.Hash{merkle.LeafHash(Canonicalize(issued))})
	require.NoError(t, err)

	require.True(t, Verify(issued, nil, tree.Root()))
	require.False(t, Verify(forged, nil, tree.Root()))
}
