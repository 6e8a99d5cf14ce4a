package dispatch

import "time"

// Backoff returns the delay before retry attempt n (0-based): base doubled
// per attempt, capped at max.
// Parameters:
//   - base: delay before the first retry.
//   - max: upper bound on the delay.
//   - n: number of retries already performed.
// Returns:
//   - time.Duration: delay to wait before the next attempt.
func Backoff(base, max time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
