package outbox

import "time"

// Backoff returns the delay before the next publish attempt. The delay doubles
// with every failed attempt starting from base and never exceeds cap, so it is
// monotonically non-decreasing in retryCount. retryCount is the post-increment
// attempt count, i.e. 1 after the first failure.
func Backoff(retryCount int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if retryCount < 1 {
		retryCount = 1
	}
	delay := base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}
