// Package backoff provides the retry delay policy shared by the fetch and
// write stages: capped exponential growth with jitter. The policy is a pure
// mapping from attempt number to wait duration; sleeping is the caller's job,
// so the same policy works under any clock.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Policy maps a 1-based attempt number to a wait duration. Delay grows
// exponentially from Base, capped at Cap, with ±Jitter randomization to keep
// restarted loaders from retrying in lockstep.
type Policy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64 // fraction of the delay randomized in both directions, 0..1
}

// Default returns the policy used in production: 200ms doubling to a 5s cap
// with 20% jitter. Keeps retry storms short while avoiding tight loops during
// feed or broker outages.
func Default() Policy {
	return Policy{Base: 200 * time.Millisecond, Cap: 5 * time.Second, Jitter: 0.2}
}

// Delay returns the wait duration before the given attempt's retry.
// Attempts below 1 are treated as 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.Base
	for i := 1; i < attempt && d < p.Cap; i++ {
		d *= 2
	}
	if d > p.Cap {
		d = p.Cap
	}

	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}
