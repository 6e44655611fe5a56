package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestConfigValidateValidManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "experiment.yaml", `experiment:
  name: validate-ok
runs:
  - name: a
    command: ["true"]
`)

	root := NewRootCmd()
	root.SetArgs([]string{"config", "validate", "-f", path})
	var stderr bytes.Buffer
	root.SetErr(&stderr)

	if err := root.Execute(); err != nil {
		t.Fatalf("validate failed: %v\n%s", err, stderr.String())
	}
}

func TestConfigValidateRejectsBadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "experiment.yaml", `experiment:
  name: validate-bad
runs:
  - name: a
    command: []
`)

	root := NewRootCmd()
	root.SetArgs([]string{"config", "validate", "-f", path})
	var stderr bytes.Buffer
	root.SetErr(&stderr)

	if err := root.Execute(); err == nil {
		t.Fatalf("expected validation to fail for empty command")
	}
}

func TestRunCmdRejectsMissingManifest(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"run", "-f", filepath.Join(t.TempDir(), "missing.yaml")})
	var stderr bytes.Buffer
	root.SetErr(&stderr)

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for missing manifest")
	}
}

func TestShellExitCode(t *testing.T) {
	cases := map[int]int{
		0:   0,
		1:   1,
		42:  42,
		-9:  137,
		-15: 143,
	}
	for status, want := range cases {
		if got := shellExitCode(status); got != want {
			t.Fatalf("shellExitCode(%d) = %d, want %d", status, got, want)
		}
	}
}
