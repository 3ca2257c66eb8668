package connectivity

import (
	"math/rand/v2"
	"time"
)

// BackoffCeiling returns min(maxDelay, base*2^attempt) without overflowing.
func BackoffCeiling(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}
	ceiling := base
	for range attempt {
		if ceiling >= maxDelay/2 {
			return maxDelay
		}
		ceiling *= 2
	}
	return min(ceiling, maxDelay)
}

// FullJitter returns a delay drawn uniformly from [0, BackoffCeiling(attempt, base, maxDelay)].
func FullJitter(attempt int, base, maxDelay time.Duration) time.Duration {
	return fullJitter(attempt, base, maxDelay, rand.Int64N)
}

func fullJitter(attempt int, base, maxDelay time.Duration, int64n func(int64) int64) time.Duration {
	ceiling := BackoffCeiling(attempt, base, maxDelay)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(int64n(int64(ceiling) + 1))
}
