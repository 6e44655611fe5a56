package metrics_test

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runlab/runlab/internal/metrics"
)

func TestRegistryExposesMetrics(t *testing.T) {
	experiment := "metrics_test_experiment"
	t.Cleanup(func() { metrics.ResetExperiment(experiment) })

	metrics.EmitBuildInfo()
	metrics.RunStarted(experiment)
	metrics.RunStarted(experiment)
	metrics.RunCompleted(experiment, 0, 1500*time.Millisecond)
	metrics.LimitViolation(experiment, "cpu_time")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}

	body := rec.Body.String()
	startedLine := fmt.Sprintf("runlab_runs_started_total{experiment=%q} 2", experiment)
	if !strings.Contains(body, startedLine) {
		t.Fatalf("expected %q in body:\n%s", startedLine, body)
	}

	activeLine := fmt.Sprintf("runlab_runs_active{experiment=%q} 1", experiment)
	if !strings.Contains(body, activeLine) {
		t.Fatalf("expected %q in body:\n%s", activeLine, body)
	}

	completedLine := fmt.Sprintf("runlab_runs_completed_total{experiment=%q,outcome=\"success\"} 1", experiment)
	if !strings.Contains(body, completedLine) {
		t.Fatalf("expected %q in body:\n%s", completedLine, body)
	}

	violationLine := fmt.Sprintf("runlab_limit_violations_total{experiment=%q,limit=\"cpu_time\"} 1", experiment)
	if !strings.Contains(body, violationLine) {
		t.Fatalf("expected %q in body:\n%s", violationLine, body)
	}

	if !strings.Contains(body, "runlab_build_info{") {
		t.Fatalf("expected build info metric in body:\n%s", body)
	}
	if !strings.Contains(body, "go_version=") {
		t.Fatalf("expected go_version label on build info metric:\n%s", body)
	}
}
