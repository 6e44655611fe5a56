package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads an experiment manifest from the provided path. The raw
// document is checked against the embedded JSON schema before the
// strict typed decode so misspelled keys and type mismatches surface
// with instance paths instead of decoder offsets.
func Load(path string) (*Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	var loose map[string]any
	if err := yaml.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if err := validateAgainstSchema(loose); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	if err := doc.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	manifestDir := filepath.Dir(absPath)
	doc.Experiment.Properties = resolveFile(manifestDir, os.ExpandEnv(doc.Experiment.Properties))
	for _, run := range doc.Runs {
		if run == nil {
			continue
		}
		run.Dir = resolveDir(manifestDir, os.ExpandEnv(run.Dir))

		if len(run.Env) > 0 {
			expanded := make(map[string]string, len(run.Env))
			for k, v := range run.Env {
				expanded[k] = os.ExpandEnv(v)
			}
			run.Env = expanded
		}

		run.Stdin = resolveFile(run.Dir, os.ExpandEnv(run.Stdin))
		run.Stdout = resolveFile(run.Dir, os.ExpandEnv(run.Stdout))
		run.Stderr = resolveFile(run.Dir, os.ExpandEnv(run.Stderr))
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func resolveDir(base, dir string) string {
	if dir == "" {
		return base
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Clean(filepath.Join(base, dir))
}

func resolveFile(base, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}
