package publish

import "time"

// Delay computes the wait before the given attempt number retries. The first
// retry waits base; each further retry doubles, capped at ceiling.
func Delay(attempt int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = base
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}
