package limiter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLimiterAdmit(t *testing.T, l Limiter) {
	limitee := &Limitee{
		Hash:       "admit",
		Limit:      5,
		WindowSize: time.Minute,
	}

	for i := int64(1); i <= limitee.Limit; i++ {
		a, err := l.Admit(limitee)
		if err != nil {
			t.Fatalf("admit failed: %s", err)
		}

		if !a.Allowed {
			t.Fatalf("call %d not allowed", i)
		}

		if have, want := a.Remaining, limitee.Limit-i; have != want {
			t.Errorf("call %d: have %v remaining, want %v", i, have, want)
		}
	}

	a, err := l.Admit(limitee)
	if err != nil {
		t.Fatalf("admit failed: %s", err)
	}

	if a.Allowed {
		t.Error("over-limit call allowed")
	}

	if have, want := a.Remaining, int64(0); have != want {
		t.Errorf("have %v remaining, want %v", have, want)
	}
}

func testLimiterConcurrency(t *testing.T, l Limiter) {
	const (
		calls = 100
		limit = 25
	)

	var (
		limitee = &Limitee{
			Hash:       "concurrent",
			Limit:      limit,
			WindowSize: time.Minute,
		}

		admitted int64
		start    = make(chan struct{})
		wg       sync.WaitGroup
	)

	for i := 0; i < calls; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			a, err := l.Admit(limitee)
			if err != nil {
				t.Error(err)
				return
			}

			if a.Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if have, want := atomic.LoadInt64(&admitted), int64(limit); have != want {
		t.Errorf("have %v admissions, want %v", have, want)
	}
}
