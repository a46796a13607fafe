/**
 * @description
 * Share allocation for packet creation. A packet's total amount is
 * pre-split into N positive shares using the two-times-the-mean method:
 * each draw is uniform in [1, 2 * remaining mean], the final share takes
 * the entire remainder, and the result is shuffled so list position
 * carries no information about draw order or magnitude.
 */

package app

import (
	"fmt"
	"math/rand"
)

// SplitAmount divides totalAmount into totalCount positive integer shares
// summing exactly to totalAmount. The function is pure: given a fixed rng
// it is deterministic, which is how the tests seed it.
//
// Callers must guarantee totalAmount >= totalCount so every share can be
// at least 1; the precondition is checked explicitly rather than assumed.
func SplitAmount(totalAmount int64, totalCount int, rng *rand.Rand) ([]int64, error) {
	if totalAmount <= 0 || totalCount <= 0 {
		return nil, fmt.Errorf("%w: amount and count must be positive", ErrInvalidArgument)
	}
	if totalAmount < int64(totalCount) {
		return nil, fmt.Errorf("%w: amount %d cannot cover %d shares of at least 1", ErrInvalidArgument, totalAmount, totalCount)
	}

	shares := make([]int64, 0, totalCount)
	remainAmount := totalAmount
	remainCount := int64(totalCount)

	for i := 0; i < totalCount-1; i++ {
		// Two-times-the-mean upper bound, clamped so that at least 1 unit
		// is left for each of the remaining shares.
		max := (remainAmount / remainCount) * 2
		if headroom := remainAmount - (remainCount - 1); max > headroom {
			max = headroom
		}
		if max < 1 {
			max = 1
		}

		amount := rng.Int63n(max) + 1
		shares = append(shares, amount)
		remainAmount -= amount
		remainCount--
	}

	// The last share takes the remainder, guaranteeing exact conservation.
	shares = append(shares, remainAmount)

	rng.Shuffle(len(shares), func(i, j int) {
		shares[i], shares[j] = shares[j], shares[i]
	})

	return shares, nil
}
