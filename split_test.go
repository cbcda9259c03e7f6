package cococonv

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainCount(t *testing.T) {
	tests := []struct {
		n        int
		ratio    float64
		expected int
	}{
		{0, 0.9, 0},
		{1, 0.9, 1},
		{10, 0.9, 9},
		{10, 0.25, 2}, // 2.5 rounds to even.
		{7, 0.5, 4},   // 3.5 rounds to even.
		{5, 0.5, 2},
		{3, 0.1, 0},
		{100, 0.8, 80},
		{4, 1.5, 4},
		{4, -1, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d*%v", tt.n, tt.ratio), func(t *testing.T) {
			assert.Equal(t, tt.expected, TrainCount(tt.n, tt.ratio))
		})
	}
}

func TestSplit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{0, 1, 2, 9, 10, 57} {
		for _, ratio := range []float64{0.1, 0.5, 0.9} {
			items := make([]int, n)
			for i := range items {
				items[i] = i
			}

			train, val := Split(items, ratio, rng)

			assert.Len(t, train, TrainCount(n, ratio))
			assert.Len(t, val, n-TrainCount(n, ratio))

			// Disjoint and covering.
			all := append(slices.Clone(train), val...)
			slices.Sort(all)
			assert.Equal(t, items, all)
		}
	}
}

func TestSplitLeavesInputUntouched(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	orig := slices.Clone(items)

	train, val := Split(items, 0.6, rand.New(rand.NewSource(3)))
	valBefore := slices.Clone(val)
	_ = append(train, "x")

	assert.Equal(t, orig, items)
	assert.Equal(t, valBefore, val)
}

func TestSplitIsReproducibleWithSeed(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	train1, val1 := Split(items, 0.7, rand.New(rand.NewSource(99)))
	train2, val2 := Split(items, 0.7, rand.New(rand.NewSource(99)))

	assert.Equal(t, train1, train2)
	assert.Equal(t, val1, val2)
}
