package rewards

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
)

// Shuffle draws a uniform permutation of [0, wordCount) and takes its first
// len(rewardIndices) entries as the session's hot positions. mapping pairs
// positions[i] with rewardIndices[i], so it is a bijection between the
// session's positions and the campaign's reward indices.
//
// rewardIndices must be sorted and no longer than wordCount.
func Shuffle(wordCount int, rewardIndices []int, intn func(int) int) (positions []int, mapping map[int]int) {
	perm := make([]int, wordCount)
	for i := range perm {
		perm[i] = i
	}
	for i := wordCount - 1; i > 0; i-- {
		j := intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}

	k := len(rewardIndices)
	if k > wordCount {
		k = wordCount
	}
	positions = perm[:k]
	mapping = make(map[int]int, k)
	for i, pos := range positions {
		mapping[pos] = rewardIndices[i]
	}
	return positions, mapping
}

// cryptoIntn returns a uniform int in [0, n) from the system CSPRNG.
func cryptoIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return mrand.Intn(n)
	}
	return int(v.Int64())
}
