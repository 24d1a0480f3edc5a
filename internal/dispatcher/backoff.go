package dispatcher

import "time"

const (
	backoffBase = 60 * time.Second
	backoffCap  = 24 * time.Hour
)

// Backoff returns the retry delay after the given attempt count (1-based).
// Doubling starts from one minute and saturates at one day from the
// eleventh attempt on.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	shift := attempts - 1
	if shift >= 10 {
		return backoffCap
	}

	d := backoffBase * (1 << shift)
	if d > backoffCap {
		return backoffCap
	}
	return d
}
