package internal

import "time"

const backoffMinWait = time.Microsecond

// NewBackoff returns a Backoff that starts at one microsecond and doubles
// its wait on every miss up to maxWait.
func NewBackoff(maxWait time.Duration) Backoff {
	if maxWait < backoffMinWait {
		maxWait = backoffMinWait
	}
	return Backoff{
		wait:    backoffMinWait,
		maxWait: maxWait,
	}
}

// A Backoff with a non-zero maxWait is ready for use.
type Backoff struct {
	wait    time.Duration
	maxWait time.Duration
}

// Hit resets the wait to its starting value.
func (eb *Backoff) Hit() {
	if eb.maxWait == 0 {
		panic("MaxWait cannot be zero")
	}
	eb.wait = backoffMinWait
}

// Miss sleeps for the current wait, bounded by limit if limit is positive,
// and increases the wait exponentially.
func (eb *Backoff) Miss(limit time.Duration) {
	if eb.maxWait == 0 {
		panic("MaxWait cannot be zero")
	}
	wait := eb.wait
	if limit > 0 && wait > limit {
		wait = limit
	}
	time.Sleep(wait)
	eb.wait *= 2
	if eb.wait > eb.maxWait {
		eb.wait = eb.maxWait
	}
}
