package limiter

import (
	"time"

	"github.com/go-kit/log"
)

type logLimiter struct {
	logger log.Logger
	next   Limiter
}

// LogMiddleware given a Logger wraps the next Limiter with logging
// capabilities.
func LogMiddleware(logger log.Logger, store string) ServiceMiddleware {
	return func(next Limiter) Limiter {
		logger = log.With(logger,
			"service", serviceName,
			"store", store,
		)

		return &logLimiter{logger: logger, next: next}
	}
}

func (l *logLimiter) Admit(limitee *Limitee) (a Admission, err error) {
	defer func(begin time.Time) {
		ps := []interface{}{
			"allowed", a.Allowed,
			"duration_ns", time.Since(begin).Nanoseconds(),
			"hash", limitee.Hash,
			"limit", limitee.Limit,
			"method", "Admit",
			"remaining", a.Remaining,
		}

		if err != nil {
			ps = append(ps, "err", err)
		}

		_ = l.logger.Log(ps...)
	}(time.Now())

	return l.next.Admit(limitee)
}
