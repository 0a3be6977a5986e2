package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// TokenBucket returns a Limiter that shapes traffic with a token bucket
// instead of a fixed window, for deployments that cannot tolerate the 2x
// burst a window boundary permits. Limit and WindowSize of the Limitee are
// translated into refill rate and burst size; Remaining and Expires are
// approximations derived from the bucket state.
func TokenBucket() Limiter {
	return &bucketLimiter{
		buckets: map[string]*rate.Limiter{},
	}
}

func (l *bucketLimiter) Admit(limitee *Limitee) (Admission, error) {
	l.mu.Lock()

	lim, ok := l.buckets[limitee.Hash]
	if !ok {
		lim = rate.NewLimiter(
			rate.Limit(float64(limitee.Limit)/limitee.WindowSize.Seconds()),
			int(limitee.Limit),
		)
		l.buckets[limitee.Hash] = lim
	}

	l.mu.Unlock()

	allowed := lim.Allow()

	remaining := int64(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return Admission{
		Allowed:   allowed,
		Expires:   time.Now().Add(limitee.WindowSize),
		Remaining: remaining,
	}, nil
}
