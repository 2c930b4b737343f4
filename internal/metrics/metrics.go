package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicectl",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of services that started and became available.",
		}, []string{"name"},
	)
	serviceStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicectl",
			Subsystem: "service",
			Name:      "start_failures_total",
			Help:      "Number of failed start attempts by reason.",
		}, []string{"name", "reason"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicectl",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of stop operations by result.",
		}, []string{"name", "result"},
	)
	serviceStartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "servicectl",
			Subsystem: "service",
			Name:      "start_duration_seconds",
			Help:      "Time from launch until the availability check passed.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"name"},
	)
	probePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicectl",
			Subsystem: "service",
			Name:      "probe_polls_total",
			Help:      "Number of availability checks performed during startup.",
		}, []string{"name", "kind"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servicectl",
			Subsystem: "service",
			Name:      "state_transitions_total",
			Help:      "Number of startup state machine transitions.",
		}, []string{"name", "from", "to"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceStarts, serviceStartFailures, serviceStops, serviceStartDuration, probePolls, stateTransitions}
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

// WriteTextfile writes the default gatherer in text exposition format to
// path, for pickup by node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncStartFailure(name, reason string) {
	if regOK.Load() {
		serviceStartFailures.WithLabelValues(name, reason).Inc()
	}
}

func IncStop(name, result string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name, result).Inc()
	}
}

func ObserveStartDuration(name string, seconds float64) {
	if regOK.Load() {
		serviceStartDuration.WithLabelValues(name).Observe(seconds)
	}
}

func IncProbePoll(name, kind string) {
	if regOK.Load() {
		probePolls.WithLabelValues(name, kind).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}
