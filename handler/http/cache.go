package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Directive for responses that must never land in a shared cache.
const cacheControlPrivate = "private, no-cache, no-store, must-revalidate"

// varyHeaders covers the content negotiation headers shared caches must key
// on.
const varyHeaders = "Accept, Accept-Encoding, Origin"

// adminPathPrefix marks routes whose responses are always personalised.
const adminPathPrefix = "/api/v1/admin"

// CacheRule maps a route pattern to how long shared caches may serve
// responses below it.
type CacheRule struct {
	Pattern  string
	Duration time.Duration
}

// CachePolicy is an ordered rule set consulted with first-match-wins
// precedence. It is immutable after construction.
type CachePolicy struct {
	defaultDuration time.Duration
	rules           []CacheRule
}

// NewCachePolicy returns a CachePolicy falling back to defaultDuration for
// paths no rule matches.
func NewCachePolicy(defaultDuration time.Duration, rules ...CacheRule) *CachePolicy {
	return &CachePolicy{
		defaultDuration: defaultDuration,
		rules:           rules,
	}
}

// DurationFor returns the cache duration of the first rule matching path, or
// the policy default.
func (p *CachePolicy) DurationFor(path string) time.Duration {
	for _, rule := range p.rules {
		if strings.Contains(path, rule.Pattern) {
			return rule.Duration
		}
	}

	return p.defaultDuration
}

// CacheControl decorates safe anonymous reads with shared-cache directives
// and a strong validator, and answers conditional requests that still hold
// the current representation with 304. Everything else passes through
// stamped as uncacheable.
func CacheControl(policy *CachePolicy) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
			if !cacheEligible(ctx, r) {
				w.Header().Set("Cache-Control", cacheControlPrivate)

				next(ctx, w, r)
				return
			}

			rec := newCacheRecorder(w)

			next(ctx, rec, r)

			// Never advertise error responses as shareable.
			if rec.statusCode >= http.StatusBadRequest {
				w.Header().Set("Cache-Control", cacheControlPrivate)

				rec.flush()
				return
			}

			maxAge := int64(policy.DurationFor(r.URL.Path).Seconds())

			w.Header().Set(
				"Cache-Control",
				fmt.Sprintf("public, max-age=%d, s-maxage=%d", maxAge, 2*maxAge),
			)
			w.Header().Set("Vary", varyHeaders)

			if rec.body.Len() == 0 {
				rec.flush()
				return
			}

			// The validator is derived from the body just produced, never
			// from a prior call, so a stale client validator falls through
			// to a full response.
			etag := fmt.Sprintf("%q", fmt.Sprintf("%x", sha256.Sum256(rec.body.Bytes())))

			w.Header().Set("ETag", etag)

			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}

			rec.flush()
		}
	}
}

func cacheEligible(ctx context.Context, r *http.Request) bool {
	if r.Method != "GET" && r.Method != "HEAD" {
		return false
	}

	if r.Header.Get("Authorization") != "" {
		return false
	}

	if actorFromContext(ctx).Authenticated() {
		return false
	}

	return !strings.Contains(r.URL.Path, adminPathPrefix)
}

// cacheRecorder buffers the downstream response so the validator can be
// computed before anything hits the wire.
type cacheRecorder struct {
	http.ResponseWriter

	body       bytes.Buffer
	statusCode int
}

func newCacheRecorder(w http.ResponseWriter) *cacheRecorder {
	return &cacheRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rec *cacheRecorder) Write(b []byte) (int, error) {
	return rec.body.Write(b)
}

func (rec *cacheRecorder) WriteHeader(code int) {
	rec.statusCode = code
}

func (rec *cacheRecorder) flush() {
	rec.ResponseWriter.WriteHeader(rec.statusCode)

	if rec.body.Len() > 0 {
		_, _ = rec.ResponseWriter.Write(rec.body.Bytes())
	}
}
