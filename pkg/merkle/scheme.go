package merkle

import (
	"crypto/sha256"
	"fmt"

	"github.com/Layr-Labs/forj-go/pkg/types"
)

// HashScheme defines how leaves and internal nodes are hashed.
type HashScheme interface {
	// HashLeaf hashes the canonical bytes of a record
	HashLeaf(data []byte) types.Hash

	// HashPair hashes two child nodes. Implementations must be commutative.
	HashPair(a, b types.Hash) types.Hash
}

var (
	// LegacyScheme hashes leaves as sha256(data) and nodes as
	// sha256(min || max). Leaves and nodes share one hash with no prefix, so a
	// 64-byte record encoding can collide with an internal node. It is the
	// default because every batch committed so far uses it.
	LegacyScheme HashScheme = legacyScheme{}

	// DomainSeparatedScheme prefixes leaf input with 0x00 and node input with
	// 0x01. Roots built with it are not compatible with LegacyScheme roots.
	DomainSeparatedScheme HashScheme = domainSeparatedScheme{}
)

const (
	leafDomainTag byte = 0x00
	nodeDomainTag byte = 0x01
)

// Scheme names as recorded next to an anchored root
const (
	SchemeNameLegacy          = "legacy"
	SchemeNameDomainSeparated = "domain-separated"
)

// SchemeByName resolves a recorded scheme name. The empty name is the legacy
// scheme, which is what entries written before the name was recorded use.
func SchemeByName(name string) (HashScheme, error) {
	switch name {
	case SchemeNameLegacy, "":
		return LegacyScheme, nil
	case SchemeNameDomainSeparated:
		return DomainSeparatedScheme, nil
	default:
		return nil, fmt.Errorf("unknown hash scheme %q", name)
	}
}

// SchemeName returns the recorded name of a scheme.
func SchemeName(scheme HashScheme) string {
	if scheme == DomainSeparatedScheme {
		return SchemeNameDomainSeparated
	}
	return SchemeNameLegacy
}

type legacyScheme struct{}

func (legacyScheme) HashLeaf(data []byte) types.Hash {
	return sha256.Sum256(data)
}

func (legacyScheme) HashPair(a, b types.Hash) types.Hash {
	lo, hi := sortPair(a, b)
	var data [2 * types.HashLength]byte
	copy(data[:types.HashLength], lo[:])
	copy(data[types.HashLength:], hi[:])
	return sha256.Sum256(data[:])
}

type domainSeparatedScheme struct{}

func (domainSeparatedScheme) HashLeaf(data []byte) types.Hash {
	h := sha256.New()
	h.Write([]byte{leafDomainTag})
	h.Write(data)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (domainSeparatedScheme) HashPair(a, b types.Hash) types.Hash {
	lo, hi := sortPair(a, b)
	h := sha256.New()
	h.Write([]byte{nodeDomainTag})
	h.Write(lo[:])
	h.Write(hi[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// sortPair returns a and b ordered as big-endian integers.
func sortPair(a, b types.Hash) (types.Hash, types.Hash) {
	if a.Compare(b) <= 0 {
		return a, b
	}
	return b, a
}

// LeafHash hashes canonical record bytes with the default scheme.
func LeafHash(data []byte) types.Hash {
	return LegacyScheme.HashLeaf(data)
}

// HashSortedPair hashes two nodes with the default scheme, smaller input first.
func HashSortedPair(a, b types.Hash) types.Hash {
	return LegacyScheme.HashPair(a, b)
}
