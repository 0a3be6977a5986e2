package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/omanjaya/websmansa-sub004/platform/limiter"
)

var testTiers = TierLimits{
	Admin:  240,
	Guest:  60,
	Member: 120,
}

func TestRateLimitQuota(t *testing.T) {
	handler := Chain(
		CtxActor(testAuth),
		RateLimit(log.NewNopLogger(), limiter.Mem(), testTiers, time.Minute, true),
	)(testHandlerOK)

	for i := int64(1); i <= testTiers.Guest; i++ {
		w := httptest.NewRecorder()

		handler(context.Background(), w, testRequest("GET", "/api/v1/staff"))

		if have, want := w.Code, http.StatusOK; have != want {
			t.Fatalf("call %d: have %v, want %v", i, have, want)
		}

		if have, want := w.Header().Get("X-RateLimit-Limit"), "60"; have != want {
			t.Errorf("have %v, want %v", have, want)
		}

		remaining := strconv.FormatInt(testTiers.Guest-i, 10)

		if have, want := w.Header().Get("X-RateLimit-Remaining"), remaining; have != want {
			t.Errorf("call %d: have %v remaining, want %v", i, have, want)
		}
	}

	w := httptest.NewRecorder()

	handler(context.Background(), w, testRequest("GET", "/api/v1/staff"))

	if have, want := w.Code, http.StatusTooManyRequests; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}

	if have, want := w.Header().Get("X-RateLimit-Remaining"), "0"; have != want {
		t.Errorf("have %v remaining, want %v", have, want)
	}

	p := payloadRateLimited{}

	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}

	if have := len(p.Errors["rate_limit"]); have == 0 {
		t.Error("rate_limit error missing from body")
	}

	if have, want := p.Meta.Limit, testTiers.Guest; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have := p.Meta.RetryAfter; have <= 0 {
		t.Errorf("have %v retry_after, want > 0", have)
	}
}

func TestRateLimitTiers(t *testing.T) {
	handler := Chain(
		CtxActor(testAuth),
		RateLimit(log.NewNopLogger(), limiter.Mem(), testTiers, time.Minute, true),
	)(testHandlerOK)

	cases := []struct {
		token string
		want  string
	}{
		{"", "60"},
		{"member-token", "120"},
		{"admin-token", "240"},
	}

	for _, c := range cases {
		var (
			w = httptest.NewRecorder()
			r = testRequest("GET", "/api/v1/staff")
		)

		if c.token != "" {
			r.Header.Set("Authorization", "Bearer "+c.token)
		}

		handler(context.Background(), w, r)

		if have, want := w.Code, http.StatusOK; have != want {
			t.Fatalf("token %q: have %v, want %v", c.token, have, want)
		}

		if have, want := w.Header().Get("X-RateLimit-Limit"), c.want; have != want {
			t.Errorf("token %q: have %v, want %v", c.token, have, want)
		}
	}
}

func TestRateLimitConcurrency(t *testing.T) {
	const (
		calls = 50
		limit = 10
	)

	var (
		admitted int64
		rejected int64
		start    = make(chan struct{})
		wg       sync.WaitGroup

		handler = Chain(
			CtxActor(testAuth),
			RateLimit(
				log.NewNopLogger(),
				limiter.Mem(),
				TierLimits{Admin: limit, Guest: limit, Member: limit},
				time.Minute,
				true,
			),
		)(testHandlerOK)
	)

	for i := 0; i < calls; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			w := httptest.NewRecorder()

			handler(context.Background(), w, testRequest("GET", "/api/v1/staff"))

			switch w.Code {
			case http.StatusOK:
				atomic.AddInt64(&admitted, 1)
			case http.StatusTooManyRequests:
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if have, want := atomic.LoadInt64(&admitted), int64(limit); have != want {
		t.Errorf("have %v admissions, want %v", have, want)
	}

	if have, want := atomic.LoadInt64(&rejected), int64(calls-limit); have != want {
		t.Errorf("have %v rejections, want %v", have, want)
	}
}

func TestRateLimitFailOpen(t *testing.T) {
	handler := Chain(
		CtxActor(testAuth),
		RateLimit(log.NewNopLogger(), brokenLimiter{}, testTiers, time.Minute, true),
	)(testHandlerOK)

	w := httptest.NewRecorder()

	handler(context.Background(), w, testRequest("GET", "/api/v1/staff"))

	if have, want := w.Code, http.StatusOK; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestRateLimitFailClosed(t *testing.T) {
	handler := Chain(
		CtxActor(testAuth),
		RateLimit(log.NewNopLogger(), brokenLimiter{}, testTiers, time.Minute, false),
	)(testHandlerOK)

	w := httptest.NewRecorder()

	handler(context.Background(), w, testRequest("GET", "/api/v1/staff"))

	if have, want := w.Code, http.StatusTooManyRequests; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestCtxActorRejectsInvalidCredentials(t *testing.T) {
	handler := Chain(CtxActor(testAuth))(testHandlerOK)

	var (
		w = httptest.NewRecorder()
		r = testRequest("GET", "/api/v1/staff")
	)

	r.Header.Set("Authorization", "Bearer bogus-token")

	handler(context.Background(), w, r)

	if have, want := w.Code, http.StatusUnauthorized; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Admit(*limiter.Limitee) (limiter.Admission, error) {
	return limiter.Admission{}, fmt.Errorf("connection refused")
}

func testAuth(token string) (uint64, string, error) {
	switch token {
	case "member-token":
		return 7, "member", nil
	case "admin-token":
		return 13, "admin", nil
	}

	return 0, "", fmt.Errorf("unknown token")
}

func testHandlerOK(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{
		Status: "ok",
	})
}

func testRequest(method, path string) *http.Request {
	r := httptest.NewRequest(method, path, nil)

	r.Header.Set(headerFingerprint, "fp-test")
	r.RemoteAddr = "10.0.0.7:54321"

	return r
}
