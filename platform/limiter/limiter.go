package limiter

import "time"

// Limitee is the quota we want to charge a hit against.
type Limitee struct {
	Hash       string
	Limit      int64
	WindowSize time.Duration
}

// Admission is the outcome of a single quota charge.
type Admission struct {
	Allowed   bool
	Expires   time.Time
	Remaining int64
}

// Limiter is the one providing the actual limitation implementation.
type Limiter interface {
	// Admit charges one hit for the Limitee and reports if it is still
	// within its window budget. The check and the increment happen as one
	// indivisible operation, so concurrent calls for the same hash can
	// never be admitted beyond the limit. Charged hits are not rolled
	// back, even for calls whose results are discarded upstream.
	Admit(*Limitee) (Admission, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Limiter.
type ServiceMiddleware func(Limiter) Limiter
