package queue

import "time"

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
)

// Backoff returns base * 2^(attempt-1). Attempts below 1 are treated as 1.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	return base << (attempt - 1)
}
