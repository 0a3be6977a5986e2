package limiter

import (
	"testing"
	"time"
)

func TestMemAdmit(t *testing.T) {
	testLimiterAdmit(t, Mem())
}

func TestMemAdmitConcurrency(t *testing.T) {
	testLimiterConcurrency(t, Mem())
}

func TestMemAdmitWindowReset(t *testing.T) {
	var (
		l = Mem()

		limitee = &Limitee{
			Hash:       "token",
			Limit:      2,
			WindowSize: 50 * time.Millisecond,
		}
	)

	for i := 0; i < 2; i++ {
		a, err := l.Admit(limitee)
		if err != nil {
			t.Fatalf("admit failed: %s", err)
		}

		if !a.Allowed {
			t.Fatalf("call %d not allowed", i+1)
		}
	}

	a, err := l.Admit(limitee)
	if err != nil {
		t.Fatalf("admit failed: %s", err)
	}

	if a.Allowed {
		t.Error("over-limit call allowed")
	}

	time.Sleep(60 * time.Millisecond)

	a, err = l.Admit(limitee)
	if err != nil {
		t.Fatalf("admit failed: %s", err)
	}

	if !a.Allowed {
		t.Error("call after window expiry not allowed")
	}

	if have, want := a.Remaining, int64(1); have != want {
		t.Errorf("have %v remaining, want %v", have, want)
	}
}
