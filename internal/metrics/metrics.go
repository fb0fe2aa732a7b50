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
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service starts.",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of stop requests that removed a record.",
		}, []string{"name"},
	)
	serviceCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "immediate_crashes_total",
			Help:      "Number of starts where the child exited inside the grace window.",
		}, []string{"name"},
	)
	serviceReaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "reaped_records_total",
			Help:      "Number of stale PID records removed because the process was gone.",
		}, []string{"name"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "up",
			Help:      "1 when the service was observed running at the last probe, 0 otherwise.",
		}, []string{"name"},
	)
	packageInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fampp",
			Subsystem: "package",
			Name:      "installs_total",
			Help:      "Number of package install attempts by result.",
		}, []string{"name", "result"},
	)
	installDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fampp",
			Subsystem: "package",
			Name:      "install_duration_seconds",
			Help:      "Wall time of download plus extraction.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"name"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		serviceStarts, serviceStops, serviceCrashes, serviceReaps, serviceUp,
		packageInstalls, installDuration,
		serviceCPUPercent, serviceMemoryMB, serviceNumThreads,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
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

// WriteTextfile dumps g in the node_exporter textfile format to path.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name).Inc()
	}
}

func IncCrash(name string) {
	if regOK.Load() {
		serviceCrashes.WithLabelValues(name).Inc()
	}
}

func IncReap(name string) {
	if regOK.Load() {
		serviceReaps.WithLabelValues(name).Inc()
	}
}

func SetUp(name string, up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1
		}
		serviceUp.WithLabelValues(name).Set(v)
	}
}

func ObserveInstall(name string, seconds float64, err error) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		installDuration.WithLabelValues(name).Observe(seconds)
	}
	packageInstalls.WithLabelValues(name, result).Inc()
}
