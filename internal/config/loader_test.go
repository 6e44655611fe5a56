package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadValidManifest(t *testing.T) {
	t.Setenv("RUN_DIR", "./work")

	path := writeManifest(t, `experiment:
  name: translate-bench
  parallelism: 4
defaults:
  cpuTime: 30m
  memory: 2G
runs:
  - name: seq-opt
    command: ["./solve", "--search", "astar"]
    dir: ${RUN_DIR}
    env:
      SEED: "42"
    stdout: run.log
    wallTime: 1h
  - name: seq-sat
    command: ["./solve", "--search", "lazy"]
    memory: 512M
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got, want := doc.Experiment.Parallelism, 4; got != want {
		t.Fatalf("parallelism mismatch: got %d want %d", got, want)
	}
	wantProps := filepath.Join(filepath.Dir(path), "properties.json")
	if got := doc.Experiment.Properties; got != wantProps {
		t.Fatalf("properties path not resolved: got %q want %q", got, wantProps)
	}
	if len(doc.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(doc.Runs))
	}

	opt := doc.Runs[0]
	wantDir := filepath.Join(filepath.Dir(path), "work")
	if got := opt.Dir; got != wantDir {
		t.Fatalf("dir not resolved: got %q want %q", got, wantDir)
	}
	if got, want := opt.Stdout, filepath.Join(wantDir, "run.log"); got != want {
		t.Fatalf("stdout not resolved: got %q want %q", got, want)
	}
	if got, want := opt.CPUTime.Duration, 30*time.Minute; got != want {
		t.Fatalf("cpuTime default mismatch: got %v want %v", got, want)
	}
	if got, want := opt.WallTime.Duration, time.Hour; got != want {
		t.Fatalf("wallTime mismatch: got %v want %v", got, want)
	}
	if got, want := opt.Executor, ExecutorProcess; got != want {
		t.Fatalf("executor default mismatch: got %q want %q", got, want)
	}
	if got, want := opt.MemoryBytes, int64(2<<30); got != want {
		t.Fatalf("memory default mismatch: got %d want %d", got, want)
	}

	sat := doc.Runs[1]
	if got, want := sat.MemoryBytes, int64(512<<20); got != want {
		t.Fatalf("memory override mismatch: got %d want %d", got, want)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeManifest(t, `experiment:
  name: typo
runs:
  - name: a
    command: ["true"]
    cputime: 5s
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "cputime") {
		t.Fatalf("error should name the offending field, got: %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeManifest(t, `experiment:
  name: bad-duration
runs:
  - name: a
    command: ["true"]
    cpuTime: five minutes
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestLoadRejectsMissingRuns(t *testing.T) {
	path := writeManifest(t, `experiment:
  name: empty
runs: []
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for empty runs")
	}
	if !strings.Contains(err.Error(), "runs") {
		t.Fatalf("error should mention runs, got: %v", err)
	}
}

func TestLoadRejectsDockerRunWithoutImage(t *testing.T) {
	path := writeManifest(t, `experiment:
  name: docker-missing-image
runs:
  - name: a
    command: ["true"]
    executor: docker
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for docker run without image")
	}
	if !strings.Contains(err.Error(), "image") {
		t.Fatalf("error should mention the missing image, got: %v", err)
	}
}

func TestLoadDuplicateRunNames(t *testing.T) {
	path := writeManifest(t, `experiment:
  name: dup
runs:
  - name: a
    command: ["true"]
  - name: a
    command: ["false"]
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for duplicate run names")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("error should mention the duplicate, got: %v", err)
	}
}
