// Package metrics exposes Prometheus collectors for section runs, queries
// and helper process starts.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Section run outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeDenied   = "denied"
	OutcomeCooling  = "cooling"
	OutcomeBusy     = "busy"
	OutcomeTimedOut = "timeout"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sectionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sectionagent",
			Subsystem: "section",
			Name:      "runs_total",
			Help:      "Number of section runs by outcome.",
		}, []string{"section", "outcome"},
	)
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sectionagent",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Duration of management object enumerations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"object", "status"},
	)
	helperStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sectionagent",
			Subsystem: "helper",
			Name:      "starts_total",
			Help:      "Number of helper process start attempts by result.",
		}, []string{"result"},
	)
	sinkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sectionagent",
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Number of synchronous section writes by result.",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{sectionRuns, queryDuration, helperStarts, sinkWrites}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has succeeded.

func IncSectionRun(section, outcome string) {
	if regOK.Load() {
		sectionRuns.WithLabelValues(section, outcome).Inc()
	}
}

func ObserveQuery(object, status string, seconds float64) {
	if regOK.Load() {
		queryDuration.WithLabelValues(object, status).Observe(seconds)
	}
}

func IncHelperStart(result string) {
	if regOK.Load() {
		helperStarts.WithLabelValues(result).Inc()
	}
}

func IncSinkWrite(result string) {
	if regOK.Load() {
		sinkWrites.WithLabelValues(result).Inc()
	}
}
