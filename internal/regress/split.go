package regress

import (
	"math"
	"math/rand/v2"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Split shuffles row indices with seed and holds out ceil(testFrac*n) rows for testing.
func Split(n int, testFrac float64, seed uint64) (train, test []int) {
	perm := permutation(n, seed)
	nTest := int(math.Ceil(testFrac * float64(n)))
	if nTest > n {
		nTest = n
	}
	return perm[nTest:], perm[:nTest]
}

func permutation(n int, seed uint64) []int {
	return newRNG(seed).Perm(n)
}
