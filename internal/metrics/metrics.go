package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	runsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runlab",
		Name:      "runs_started_total",
		Help:      "Total number of supervised runs started, per experiment.",
	}, []string{"experiment"})

	runsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runlab",
		Name:      "runs_completed_total",
		Help:      "Total number of supervised runs completed, per experiment and outcome.",
	}, []string{"experiment", "outcome"})

	runsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "runlab",
		Name:      "runs_active",
		Help:      "Number of supervised runs currently executing.",
	}, []string{"experiment"})

	limitViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runlab",
		Name:      "limit_violations_total",
		Help:      "Total number of resource-limit violations, per limit kind.",
	}, []string{"experiment", "limit"})

	runCPUTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "runlab",
		Name:      "run_cpu_seconds",
		Help:      "Measured aggregate CPU time of completed runs in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"experiment"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "runlab",
		Name:      "build_info",
		Help:      "Build metadata for the running runlab binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(runsStarted, runsCompleted, runsActive, limitViolations, runCPUTime, buildInfo)
}

// Registry returns the Prometheus registry containing all runlab metrics.
func Registry() *prometheus.Registry {
	return registry
}

// RunStarted records the start of one supervised run.
func RunStarted(experiment string) {
	if experiment == "" {
		experiment = "unknown"
	}
	runsStarted.WithLabelValues(experiment).Inc()
	runsActive.WithLabelValues(experiment).Inc()
}

// RunCompleted records a finished run. outcome is "success" for exit status
// zero and "failure" otherwise.
func RunCompleted(experiment string, exitStatus int, cpuTime time.Duration) {
	if experiment == "" {
		experiment = "unknown"
	}
	outcome := "success"
	if exitStatus != 0 {
		outcome = "failure"
	}
	runsCompleted.WithLabelValues(experiment, outcome).Inc()
	runsActive.WithLabelValues(experiment).Dec()
	runCPUTime.WithLabelValues(experiment).Observe(cpuTime.Seconds())
}

// LimitViolation counts a crossed resource limit. kind is one of
// "cpu_time", "wall_clock_time" or "memory".
func LimitViolation(experiment, kind string) {
	if experiment == "" {
		experiment = "unknown"
	}
	limitViolations.WithLabelValues(experiment, kind).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// ResetExperiment clears the per-experiment series, for tests.
func ResetExperiment(experiment string) {
	if experiment == "" {
		return
	}
	runsStarted.DeleteLabelValues(experiment)
	runsActive.DeleteLabelValues(experiment)
	runCPUTime.DeleteLabelValues(experiment)
	for _, outcome := range []string{"success", "failure"} {
		runsCompleted.DeleteLabelValues(experiment, outcome)
	}
	for _, kind := range []string{"cpu_time", "wall_clock_time", "memory"} {
		limitViolations.DeleteLabelValues(experiment, kind)
	}
}
