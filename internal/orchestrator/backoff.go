package orchestrator

import "time"

// Backoff returns the delay before reconnect attempt n (1-based): initial
// doubled per attempt and capped at maxDelay.
func Backoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}
