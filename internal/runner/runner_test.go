package runner

import (
	"testing"
	"time"
)

func TestEffectiveWallClockLimit(t *testing.T) {
	cases := []struct {
		name string
		cpu  time.Duration
		wall time.Duration
		want time.Duration
	}{
		{"neither set", 0, 0, 0},
		{"explicit wall only", 0, 42 * time.Second, 42 * time.Second},
		{"explicit wall wins over derivation", 10 * time.Second, 7 * time.Second, 7 * time.Second},
		{"derived below floor", 10 * time.Second, 0, 30 * time.Second},
		{"derived at factor", 60 * time.Second, 0, 90 * time.Second},
		{"derived exactly at floor", 20 * time.Second, 0, 30 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveWallLimit(tc.cpu, tc.wall); got != tc.want {
				t.Errorf("EffectiveWallLimit(%v, %v) = %v, want %v", tc.cpu, tc.wall, got, tc.want)
			}
		})
	}
}

func TestNewExposesEffectiveWallLimit(t *testing.T) {
	call, err := New([]string{"true"}, Options{CPUTimeLimit: 60 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	limit, ok := call.WallClockTimeLimit()
	if !ok || limit != 90*time.Second {
		t.Errorf("wall limit = %v, %v; want 90s, true", limit, ok)
	}

	call, err = New([]string{"true"}, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := call.WallClockTimeLimit(); ok {
		t.Error("unbounded call reports a wall-clock limit")
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	cases := []struct {
		name string
		args []string
		opts Options
	}{
		{"empty command", nil, Options{}},
		{"negative cpu limit", []string{"true"}, Options{CPUTimeLimit: -time.Second}},
		{"negative wall limit", []string{"true"}, Options{WallTimeLimit: -time.Second}},
		{"negative memory limit", []string{"true"}, Options{MemoryLimitMiB: -1}},
		{"negative kill delay", []string{"true"}, Options{KillDelay: -time.Second}},
		{"negative poll interval", []string{"true"}, Options{PollInterval: -time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.args, tc.opts); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}

func TestQueriesBeforeCompletion(t *testing.T) {
	call, err := New([]string{"true"}, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := call.CPUTime(); ok {
		t.Error("CPUTime reported before completion")
	}
	if _, ok := call.ExitStatus(); ok {
		t.Error("ExitStatus reported before completion")
	}
	if call.CPUTimeLimitExceeded() {
		t.Error("exceeded flag set before completion")
	}
}
