package rewards

import (
	"math"
	mrand "math/rand"
	"sort"
	"testing"
)

func TestShuffleIsBijection(t *testing.T) {
	rewardIndices := []int{1, 4, 9}

	for trial := 0; trial < 200; trial++ {
		positions, mapping := Shuffle(12, rewardIndices, cryptoIntn)

		if len(positions) != 3 || len(mapping) != 3 {
			t.Fatalf("positions=%v mapping=%v", positions, mapping)
		}

		seenPos := map[int]bool{}
		seenOrig := map[int]bool{}
		for _, p := range positions {
			if p < 0 || p >= 12 {
				t.Fatalf("position %d out of range", p)
			}
			if seenPos[p] {
				t.Fatalf("duplicate position %d", p)
			}
			seenPos[p] = true

			orig, ok := mapping[p]
			if !ok {
				t.Fatalf("position %d unmapped", p)
			}
			if seenOrig[orig] {
				t.Fatalf("original index %d mapped twice", orig)
			}
			seenOrig[orig] = true
		}

		var got []int
		for o := range seenOrig {
			got = append(got, o)
		}
		sort.Ints(got)
		for i, want := range rewardIndices {
			if got[i] != want {
				t.Fatalf("original indices = %v, want %v", got, rewardIndices)
			}
		}
	}
}

func TestShufflePairsInDrawOrder(t *testing.T) {
	// intn always picking 0 rotates: perm becomes [1,2,3,0] for n=4
	positions, mapping := Shuffle(4, []int{0, 3}, func(int) int { return 0 })

	if positions[0] != 1 || positions[1] != 2 {
		t.Fatalf("positions = %v", positions)
	}
	if mapping[1] != 0 || mapping[2] != 3 {
		t.Errorf("mapping = %v", mapping)
	}
}

func TestShuffleIsUniform(t *testing.T) {
	const (
		n      = 4
		trials = 24000
	)
	rng := mrand.New(mrand.NewSource(42))
	counts := make([][]int, n)
	for i := range counts {
		counts[i] = make([]int, n)
	}

	indices := []int{0, 1, 2, 3}
	for i := 0; i < trials; i++ {
		positions, _ := Shuffle(n, indices, rng.Intn)
		for slot, pos := range positions {
			counts[slot][pos]++
		}
	}

	expected := float64(trials) / n
	for slot := range counts {
		for pos, c := range counts[slot] {
			if math.Abs(float64(c)-expected) > expected*0.1 {
				t.Errorf("slot %d position %d drawn %d times, expected about %.0f", slot, pos, c, expected)
			}
		}
	}
}

func TestShuffleNoRewards(t *testing.T) {
	positions, mapping := Shuffle(5, nil, cryptoIntn)
	if len(positions) != 0 || len(mapping) != 0 {
		t.Errorf("positions=%v mapping=%v", positions, mapping)
	}
}
