package merkle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Layr-Labs/forj-go/pkg/canonical"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

var (
	// ErrEmptyBatch is returned when a tree is requested for zero leaves.
	ErrEmptyBatch = errors.New("cannot build merkle tree from an empty batch")

	// ErrIndexOutOfRange is returned when a proof is requested for a leaf the
	// tree does not have.
	ErrIndexOutOfRange = errors.New("leaf index out of range")
)

// minParallelLevel is the smallest level width worth splitting across workers
const minParallelLevel = 256

type options struct {
	scheme  HashScheme
	workers int
}

// Option configures tree construction and verification.
type Option func(*options)

// WithScheme selects the hash scheme. LegacyScheme is used when unset.
func WithScheme(scheme HashScheme) Option {
	return func(o *options) {
		if scheme != nil {
			o.scheme = scheme
		}
	}
}

// WithParallelism hashes each level with up to n goroutines. Every level is
// completed before the next one starts, so the result is identical to a
// sequential build.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func buildOptions(opts []Option) *options {
	o := &options{scheme: LegacyScheme, workers: 1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BuildMerkleTree builds a tree over leaves in the order given.
//
// Adjacent nodes are paired left to right. If a level has an odd number of
// nodes the last node is paired with itself. The two hashes in each pair are
// sorted before hashing, which lets a verifier fold a proof without knowing
// which side each sibling was on.
func BuildMerkleTree(leaves []types.Hash, opts ...Option) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyBatch
	}
	o := buildOptions(opts)

	// Copy so later changes to the caller's slice cannot reach the tree
	base := make([]types.Hash, len(leaves))
	copy(base, leaves)

	levels := [][]types.Hash{base}
	current := base
	for len(current) > 1 {
		next := make([]types.Hash, (len(current)+1)/2)
		if o.workers > 1 && len(current) >= minParallelLevel {
			hashLevelParallel(o.scheme, current, next, o.workers)
		} else {
			hashLevel(o.scheme, current, next, 0, len(next))
		}
		levels = append(levels, next)
		current = next
	}

	return &MerkleTree{
		levels: levels,
		scheme: o.scheme,
	}, nil
}

// hashLevel fills next[from:to] from the pairs of current.
func hashLevel(scheme HashScheme, current, next []types.Hash, from, to int) {
	for p := from; p < to; p++ {
		left := current[2*p]
		right := left
		if 2*p+1 < len(current) {
			right = current[2*p+1]
		}
		next[p] = scheme.HashPair(left, right)
	}
}

func hashLevelParallel(scheme HashScheme, current, next []types.Hash, workers int) {
	chunk := (len(next) + workers - 1) / workers
	var wg sync.WaitGroup
	for from := 0; from < len(next); from += chunk {
		to := from + chunk
		if to > len(next) {
			to = len(next)
		}
		wg.Add(1)
		go func(from, to int) {
			defer wg.Done()
			hashLevel(scheme, current, next, from, to)
		}(from, to)
	}
	wg.Wait()
}

// BuildFromRecords canonicalizes and hashes every record, then builds the tree.
func BuildFromRecords(records []types.Record, opts ...Option) (*MerkleTree, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}
	o := buildOptions(opts)
	leaves := make([]types.Hash, len(records))
	for i, r := range records {
		leaves[i] = o.scheme.HashLeaf(canonical.Canonicalize(r))
	}
	return BuildMerkleTree(leaves, opts...)
}

// Root returns the single node of the top level.
func (mt *MerkleTree) Root() types.Hash {
	return mt.levels[len(mt.levels)-1][0]
}

// LeafCount returns the number of leaves in the tree.
func (mt *MerkleTree) LeafCount() int {
	return len(mt.levels[0])
}

// Depth returns the number of levels above the leaves, which is also the
// length of every proof.
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// Leaf returns the leaf hash at index.
func (mt *MerkleTree) Leaf(index int) (types.Hash, error) {
	if index < 0 || index >= mt.LeafCount() {
		return types.Hash{}, fmt.Errorf("%w: %d (tree has %d leaves)", ErrIndexOutOfRange, index, mt.LeafCount())
	}
	return mt.levels[0][index], nil
}

// Leaves returns a copy of the leaf level.
func (mt *MerkleTree) Leaves() []types.Hash {
	out := make([]types.Hash, mt.LeafCount())
	copy(out, mt.levels[0])
	return out
}

// Scheme returns the hash scheme the tree was built with.
func (mt *MerkleTree) Scheme() HashScheme {
	return mt.scheme
}

// GenerateProof collects the sibling of leafIndex at every level below the root.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= mt.LeafCount() {
		return nil, fmt.Errorf("%w: %d (tree has %d leaves)", ErrIndexOutOfRange, leafIndex, mt.LeafCount())
	}

	siblings := make([]types.Hash, 0, mt.Depth())
	index := leafIndex
	for level := 0; level < mt.Depth(); level++ {
		currentLevel := mt.levels[level]

		siblingIndex := index ^ 1
		// The last node of an odd level was paired with itself
		if siblingIndex >= len(currentLevel) {
			siblingIndex = index
		}
		siblings = append(siblings, currentLevel[siblingIndex])

		index /= 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.levels[0][leafIndex],
		Siblings:  siblings,
	}, nil
}

// GenerateAllProofs returns one proof per leaf, in leaf order.
func (mt *MerkleTree) GenerateAllProofs() ([]*MerkleProof, error) {
	proofs := make([]*MerkleProof, mt.LeafCount())
	for i := range proofs {
		proof, err := mt.GenerateProof(i)
		if err != nil {
			return nil, err
		}
		proofs[i] = proof
	}
	return proofs, nil
}

// FoldProof hashes leaf with each sibling in turn and returns the derived root.
func FoldProof(leaf types.Hash, siblings []types.Hash, opts ...Option) types.Hash {
	o := buildOptions(opts)
	current := leaf
	for _, sibling := range siblings {
		current = o.scheme.HashPair(current, sibling)
	}
	return current
}

// VerifyProof reports whether folding leaf with siblings yields root. A proof
// of the wrong length simply derives a different hash.
func VerifyProof(leaf types.Hash, siblings []types.Hash, root types.Hash, opts ...Option) bool {
	return FoldProof(leaf, siblings, opts...) == root
}

// Verify reports whether record is a member of the batch committed to root,
// given its proof. It never fails: anything that does not fold to root is
// simply not verified.
func Verify(record types.Record, siblings []types.Hash, root types.Hash, opts ...Option) bool {
	return VerifyProof(LeafFromRecord(record, opts...), siblings, root, opts...)
}

// LeafFromRecord computes the leaf hash of a record.
func LeafFromRecord(record types.Record, opts ...Option) types.Hash {
	o := buildOptions(opts)
	return o.scheme.HashLeaf(canonical.Canonicalize(record))
}
