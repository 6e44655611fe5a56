package revcache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestComputeOncePerKey(t *testing.T) {
	cache := New()
	var calls atomic.Int32

	key := Key{Repo: "planner", Rev: "main", Config: "release"}
	compute := func() (string, error) {
		calls.Add(1)
		return "abc123", nil
	}

	for i := 0; i < 3; i++ {
		got, err := cache.Get(key, compute)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != "abc123" {
			t.Errorf("value = %q, want abc123", got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times, want 1", calls.Load())
	}
}

func TestDistinctKeysComputeSeparately(t *testing.T) {
	cache := New()

	for i, key := range []Key{
		{Repo: "planner", Rev: "main"},
		{Repo: "planner", Rev: "v2"},
		{Repo: "planner", Rev: "main", Config: "debug"},
	} {
		want := fmt.Sprintf("rev-%d", i)
		got, err := cache.Get(key, func() (string, error) { return want, nil })
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != want {
			t.Errorf("value = %q, want %q", got, want)
		}
	}
	if cache.Len() != 3 {
		t.Errorf("len = %d, want 3", cache.Len())
	}
}

func TestErrorsAreCached(t *testing.T) {
	cache := New()
	var calls atomic.Int32
	failure := errors.New("rev not found")

	key := Key{Repo: "planner", Rev: "missing"}
	for i := 0; i < 2; i++ {
		_, err := cache.Get(key, func() (string, error) {
			calls.Add(1)
			return "", failure
		})
		if !errors.Is(err, failure) {
			t.Fatalf("err = %v, want %v", err, failure)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("failed compute ran %d times, want 1", calls.Load())
	}
}

func TestConcurrentGetsComputeOnce(t *testing.T) {
	cache := New()
	var calls atomic.Int32
	key := Key{Repo: "planner", Rev: "main"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Get(key, func() (string, error) {
				calls.Add(1)
				return "abc123", nil
			})
			if err != nil || got != "abc123" {
				t.Errorf("get = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("compute ran %d times under concurrency, want 1", calls.Load())
	}
}
