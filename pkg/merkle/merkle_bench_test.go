package merkle

import (
	"fmt"
	"testing"
)

// BenchmarkMerkleTreeBuild benchmarks tree construction with various sizes
func BenchmarkMerkleTreeBuild(b *testing.B) {
	sizes := []int{10, 100, 1000, 5000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Records_%d", size), func(b *testing.B) {
			records := createTestRecords(size)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_, _ = BuildFromRecords(records)
			}
		})
		b.Run(fmt.Sprintf("Records_%d_Parallel", size), func(b *testing.B) {
			records := createTestRecords(size)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_, _ = BuildFromRecords(records, WithParallelism(4))
			}
		})
	}
}

// BenchmarkMerkleProofGeneration benchmarks proof generation
func BenchmarkMerkleProofGeneration(b *testing.B) {
	sizes := []int{10, 100, 1000}

	for _, size := range sizes {
		tree, _ := BuildFromRecords(createTestRecords(size))

		b.Run(fmt.Sprintf("Records_%d", size), func(b *testing.B) {
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_, _ = tree.GenerateProof(i % size)
			}
		})
	}
}

// BenchmarkVerify benchmarks full record verification
func BenchmarkVerify(b *testing.B) {
	sizes := []int{10, 100, 1000}

	for _, size := range sizes {
		records := createTestRecords(size)
		tree, _ := BuildFromRecords(records)
		proof, _ := tree.GenerateProof(0)

		b.Run(fmt.Sprintf("Records_%d", size), func(b *testing.B) {
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_ = Verify(records[0], proof.Siblings, tree.Root())
			}
		})
	}
}
