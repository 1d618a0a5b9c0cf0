package staquery

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type outcome string

const (
	outcomeSuccess  outcome = "success"
	outcomeRejected outcome = "rejected"
	outcomeFailure  outcome = "failure"
)

type builderMetrics struct {
	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
}

func newBuilderMetrics() *builderMetrics {
	return &builderMetrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staquery_predicate_builds_total",
			Help: "Total number of predicate builds by entity type and outcome",
		}, []string{"entity_type", "outcome"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:                            "staquery_predicate_build_duration_seconds",
			Help:                            "Time taken to parse and compile a filter in seconds",
			Buckets:                         prometheus.ExponentialBuckets(0.00001, 4, 10),
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"entity_type"}),
	}
}

// register adds the collectors to reg. Collectors registered by an earlier
// builder on the same registry are reused.
func (m *builderMetrics) register(reg prometheus.Registerer) error {
	var err error
	if m.builds, err = registerOrExisting(reg, m.builds); err != nil {
		return err
	}
	if m.buildDuration, err = registerOrExisting(reg, m.buildDuration); err != nil {
		return err
	}
	return nil
}

func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return c, err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return c, err
		}
		return existing, nil
	}
	return c, nil
}

func (m *builderMetrics) observe(entityType string, start time.Time, err error) {
	o := outcomeSuccess
	switch {
	case err == nil:
	case IsInvalidQuery(err):
		o = outcomeRejected
	default:
		o = outcomeFailure
	}
	m.builds.WithLabelValues(entityType, string(o)).Inc()
	m.buildDuration.WithLabelValues(entityType).Observe(time.Since(start).Seconds())
}
