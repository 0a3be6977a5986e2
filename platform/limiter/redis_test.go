package limiter

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	predis "github.com/omanjaya/websmansa-sub004/platform/redis"
)

const testPrefix = "limitertest"

func TestRedisAdmit(t *testing.T) {
	s := miniredis.RunT(t)

	testLimiterAdmit(t, Redis(predis.Pool(s.Addr(), ""), testPrefix))
}

func TestRedisAdmitConcurrency(t *testing.T) {
	s := miniredis.RunT(t)

	testLimiterConcurrency(t, Redis(predis.Pool(s.Addr(), ""), testPrefix))
}

func TestRedisAdmitWindowReset(t *testing.T) {
	var (
		s = miniredis.RunT(t)
		l = Redis(predis.Pool(s.Addr(), ""), testPrefix)

		limitee = &Limitee{
			Hash:       "token",
			Limit:      10,
			WindowSize: time.Minute,
		}
	)

	for i := 0; i < 10; i++ {
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

	s.FastForward(time.Minute + time.Second)

	a, err = l.Admit(limitee)
	if err != nil {
		t.Fatalf("admit failed: %s", err)
	}

	if !a.Allowed {
		t.Error("call after window expiry not allowed")
	}

	if have, want := a.Remaining, int64(9); have != want {
		t.Errorf("have %v remaining, want %v", have, want)
	}
}

func TestRedisAdmitRepairsMissingTTL(t *testing.T) {
	var (
		s = miniredis.RunT(t)
		l = Redis(predis.Pool(s.Addr(), ""), testPrefix)
	)

	// XXX This simulates the faulty EC behaviour we observed which leaves a
	// key without a TTL.
	if err := s.Set(testPrefix+":token", "3"); err != nil {
		t.Fatal(err)
	}

	a, err := l.Admit(&Limitee{
		Hash:       "token",
		Limit:      10,
		WindowSize: time.Minute,
	})
	if err != nil {
		t.Fatalf("admit failed: %s", err)
	}

	if !a.Allowed {
		t.Error("call not allowed")
	}

	if have, want := a.Remaining, int64(6); have != want {
		t.Errorf("have %v remaining, want %v", have, want)
	}

	if s.TTL(testPrefix+":token") <= 0 {
		t.Error("window TTL not armed")
	}
}
