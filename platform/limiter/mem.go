package limiter

import (
	"sync"
	"time"
)

type window struct {
	count   int64
	expires time.Time
}

type memLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Mem returns a memory based Limiter implementation.
func Mem() Limiter {
	return &memLimiter{
		windows: map[string]*window{},
	}
}

func (l *memLimiter) Admit(limitee *Limitee) (Admission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	w, ok := l.windows[limitee.Hash]
	if !ok || now.After(w.expires) {
		w = &window{
			expires: now.Add(limitee.WindowSize),
		}
		l.windows[limitee.Hash] = w
	}

	w.count++

	remaining := limitee.Limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Admission{
		Allowed:   w.count <= limitee.Limit,
		Expires:   w.expires,
		Remaining: remaining,
	}, nil
}
