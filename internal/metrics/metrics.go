package metrics

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeOK              = "ok"
	OutcomeMalformed       = "malformed"
	OutcomeNotFound        = "not_found"
	OutcomeAccessDenied    = "access_denied"
	OutcomePlatformFailure = "platform_failure"

	OutcomeExited     = "exited"
	OutcomeWaitFailed = "wait_failed"
	OutcomeTimeout    = "timeout"
	OutcomeCancelled  = "cancelled"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librarylink",
			Name:      "activation_total",
			Help:      "Activation attempts by outcome.",
		}, []string{"outcome"},
	)
	waits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librarylink",
			Name:      "wait_total",
			Help:      "Completed waits on activated processes by outcome.",
		}, []string{"outcome"},
	)
	lastExitCode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "librarylink",
			Name:      "last_exit_code",
			Help:      "Exit code of the most recently observed process.",
		},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "librarylink",
			Name:      "run_duration_seconds",
			Help:      "Time from activation until the launch finished.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
		},
	)
	snapshotProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "librarylink",
			Name:      "snapshot_processes",
			Help:      "Number of records in the last process snapshot.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{activations, waits, lastExitCode, runDuration, snapshotProcesses}
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

// Registered reports whether Register has succeeded.
func Registered() bool { return regOK.Load() }

// WriteTextfile dumps the gatherer in the node_exporter textfile format.
// The write is atomic (temp file + rename).
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncActivation(outcome string) {
	if regOK.Load() {
		activations.WithLabelValues(outcome).Inc()
	}
}

func IncWait(outcome string) {
	if regOK.Load() {
		waits.WithLabelValues(outcome).Inc()
	}
}

func SetLastExitCode(code uint32) {
	if regOK.Load() {
		lastExitCode.Set(float64(code))
	}
}

func ObserveRunDuration(seconds float64) {
	if regOK.Load() {
		runDuration.Observe(seconds)
	}
}

func SetSnapshotProcesses(n int) {
	if regOK.Load() {
		snapshotProcesses.Set(float64(n))
	}
}
