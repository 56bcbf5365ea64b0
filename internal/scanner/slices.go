package scanner

import "iter"

// minPerFeed is the smallest even share of the global maximum that is still
// split across feeds; below it every feed gets the raw maximum.
const minPerFeed = 4

// PerFeedCap derives how many entries a single feed may contribute when the
// global maximum is divided across feeds. Zero means unbounded.
func PerFeedCap(globalMax, feeds int) int {
	if globalMax <= 0 {
		return 0
	}
	if feeds > 0 && globalMax/feeds >= minPerFeed {
		return globalMax/feeds + 1
	}
	return globalMax
}

// Take yields at most limit elements of seq and stops pulling from it
// afterwards. A non-positive limit yields seq unmodified.
func Take[T any](seq iter.Seq2[T, error], limit int) iter.Seq2[T, error] {
	if limit <= 0 {
		return seq
	}
	return func(yield func(T, error) bool) {
		taken := 0
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
			taken++
			if taken >= limit {
				return
			}
		}
	}
}
