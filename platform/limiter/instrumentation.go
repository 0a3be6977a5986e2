package limiter

import (
	"time"

	kitmetrics "github.com/go-kit/kit/metrics"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omanjaya/websmansa-sub004/platform/metrics"
)

const serviceName = "limiter"

type instrumentLimiter struct {
	component string
	errCount  kitmetrics.Counter
	next      Limiter
	opCount   kitmetrics.Counter
	opLatency *prometheus.HistogramVec
	store     string
}

// InstrumentMiddleware observes key aspects of Limiter operations and
// exposes Prometheus metrics.
func InstrumentMiddleware(
	component, store string,
	errCount kitmetrics.Counter,
	opCount kitmetrics.Counter,
	opLatency *prometheus.HistogramVec,
) ServiceMiddleware {
	return func(next Limiter) Limiter {
		return &instrumentLimiter{
			component: component,
			errCount:  errCount,
			next:      next,
			opCount:   opCount,
			opLatency: opLatency,
			store:     store,
		}
	}
}

func (l *instrumentLimiter) Admit(limitee *Limitee) (a Admission, err error) {
	defer func(begin time.Time) {
		l.track("Admit", begin, err)
	}(time.Now())

	return l.next.Admit(limitee)
}

func (l *instrumentLimiter) track(method string, begin time.Time, err error) {
	if err != nil {
		l.errCount.With(
			metrics.FieldComponent, l.component,
			metrics.FieldMethod, method,
			metrics.FieldService, serviceName,
			metrics.FieldStore, l.store,
		).Add(1)
	}

	l.opCount.With(
		metrics.FieldComponent, l.component,
		metrics.FieldMethod, method,
		metrics.FieldService, serviceName,
		metrics.FieldStore, l.store,
	).Add(1)

	l.opLatency.With(prometheus.Labels{
		metrics.FieldComponent: l.component,
		metrics.FieldMethod:    method,
		metrics.FieldService:   serviceName,
		metrics.FieldStore:     l.store,
	}).Observe(time.Since(begin).Seconds())
}
