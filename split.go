package cococonv

import (
	"math"
	"math/rand"
)

// Split randomly splits items into a training and a validation set.
//
// The items are shuffled with rng and the first round(len(items) * ratio) elements form the
// training set, with ties rounded to even. The input slice is not modified; the two returned
// slices share one backing array.
func Split[T any](items []T, ratio float64, rng *rand.Rand) (train, val []T) {
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := TrainCount(len(shuffled), ratio)
	return shuffled[:n:n], shuffled[n:]
}

// TrainCount returns the size of the training set for n items, clamped to [0, n].
func TrainCount(n int, ratio float64) int {
	c := int(math.RoundToEven(float64(n) * ratio))
	if c < 0 {
		return 0
	} else if c > n {
		return n
	}
	return c
}
