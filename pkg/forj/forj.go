// Package forj exposes the four operations issuance and verification
// handlers call: Canonicalize, BuildTree, GetProof and Verify.
package forj

import (
	"github.com/Layr-Labs/forj-go/pkg/canonical"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// Canonicalize returns the deterministic encoding a record's leaf is hashed from.
func Canonicalize(record types.Record) []byte {
	return canonical.Canonicalize(record)
}

// BuildTree builds the commitment tree over leaf hashes in batch order.
func BuildTree(leaves []types.Hash, opts ...merkle.Option) (*merkle.MerkleTree, error) {
	return merkle.BuildMerkleTree(leaves, opts...)
}

// GetProof returns the sibling path for the record at index.
func GetProof(tree *merkle.MerkleTree, index int) ([]types.Hash, error) {
	proof, err := tree.GenerateProof(index)
	if err != nil {
		return nil, err
	}
	return proof.Siblings, nil
}

// Verify reports whether record, with proof, folds to root.
func Verify(record types.Record, proof []types.Hash, root types.Hash, opts ...merkle.Option) bool {
	return merkle.Verify(record, proof, root, opts...)
}
