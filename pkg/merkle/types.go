package merkle

import "github.com/Layr-Labs/forj-go/pkg/types"

// MerkleTree is a binary merkle tree built over the leaves of one batch.
// Pairing follows the original leaf order; the two hashes inside each pair
// are sorted before hashing. A tree is never modified after construction and
// can be read from many goroutines.
type MerkleTree struct {
	// levels[0] = leaves, levels[len-1] = [root]
	levels [][]types.Hash

	scheme HashScheme
}

// MerkleProof proves that a leaf is included in a tree.
type MerkleProof struct {
	// LeafIndex is the position of the record in the original batch order
	LeafIndex int

	// Leaf is the hash being proven
	Leaf types.Hash

	// Siblings are the sibling hashes from the leaf level up to, but not
	// including, the root. They carry no left/right label.
	Siblings []types.Hash
}
