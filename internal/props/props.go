// Package props persists run outcomes as a flat JSON properties file, the
// contract log collaborators read after each command.
package props

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Properties is a key/value document backed by a JSON file. Values are
// addressed by gjson/sjson paths, so nested keys are possible but the
// conventional layout is flat.
type Properties struct {
	path string
	data string
}

// Load reads the properties file at path. A missing file yields an empty
// document; any other read failure is an error.
func Load(path string) (*Properties, error) {
	p := &Properties{path: path, data: "{}"}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read properties %s: %w", path, err)
	}
	if len(raw) > 0 {
		if !gjson.ValidBytes(raw) {
			return nil, fmt.Errorf("properties %s: not valid JSON", path)
		}
		p.data = string(raw)
	}
	return p, nil
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) gjson.Result {
	return gjson.Get(p.data, key)
}

// Set stores value under key in memory; Write persists it.
func (p *Properties) Set(key string, value any) error {
	if key == "" {
		return errors.New("properties: empty key")
	}
	updated, err := sjson.Set(p.data, key, value)
	if err != nil {
		return fmt.Errorf("set property %q: %w", key, err)
	}
	p.data = updated
	return nil
}

// Write persists the document, replacing the file atomically so a reader
// never observes a torn write.
func (p *Properties) Write() error {
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".properties-*")
	if err != nil {
		return fmt.Errorf("write properties %s: %w", p.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(p.data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write properties %s: %w", p.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write properties %s: %w", p.path, err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write properties %s: %w", p.path, err)
	}
	return nil
}

// RunRecord is the required outcome record for one completed run. It
// replaces ad hoc attribute bags: the keys below must always be present and
// are validated here, at the write boundary.
type RunRecord struct {
	ID         string
	Name       string
	ExitStatus int

	CPUTimeSeconds       float64
	WallClockTimeSeconds float64
	PeakMemoryMiB        float64

	CPUTimeExceeded       bool
	WallClockTimeExceeded bool
	MemoryExceeded        bool
}

func (r RunRecord) validate() error {
	if r.ID == "" {
		return errors.New("run record: id is required")
	}
	if r.Name == "" {
		return errors.New("run record: name is required")
	}
	if strings.ContainsAny(r.Name, ".*?") {
		return fmt.Errorf("run record: name %q contains path metacharacters", r.Name)
	}
	return nil
}

// RecordRun validates rec and stores it under the run's name, together with
// the conventional "<name>_returncode" and "<name>_error" keys.
func (p *Properties) RecordRun(rec RunRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	name := strings.ToLower(rec.Name)
	fields := map[string]any{
		name + ".id":                       rec.ID,
		name + ".exit_status":              rec.ExitStatus,
		name + ".cpu_time":                 rec.CPUTimeSeconds,
		name + ".wall_clock_time":          rec.WallClockTimeSeconds,
		name + ".peak_memory_mib":          rec.PeakMemoryMiB,
		name + ".cpu_time_exceeded":        rec.CPUTimeExceeded,
		name + ".wall_clock_time_exceeded": rec.WallClockTimeExceeded,
		name + ".memory_exceeded":          rec.MemoryExceeded,
	}
	for key, value := range fields {
		if err := p.Set(key, value); err != nil {
			return err
		}
	}
	return p.SaveReturncode(rec.Name, rec.ExitStatus)
}

// SaveReturncode stores the exit status of a named command plus the derived
// 0/1 error flag.
func (p *Properties) SaveReturncode(name string, status int) error {
	if name == "" {
		return errors.New("properties: command name is required")
	}
	key := strings.ToLower(name)
	if err := p.Set(key+"_returncode", status); err != nil {
		return err
	}
	errFlag := 0
	if status != 0 {
		errFlag = 1
	}
	return p.Set(key+"_error", errFlag)
}
