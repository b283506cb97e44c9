package pipeline

import "time"

// BackoffLadder is indexed by attempt number (1-based); later attempts clamp to the last entry.
var BackoffLadder = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
	360 * time.Minute,
}

// BackoffFor returns the wait before the next try after a failed attempt.
func BackoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(BackoffLadder) {
		idx = len(BackoffLadder) - 1
	}
	return BackoffLadder[idx]
}
