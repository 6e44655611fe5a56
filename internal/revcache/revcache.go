// Package revcache memoizes revision-id lookups. The cache is an explicit
// object passed to whoever needs it rather than package-level state, so
// concurrent experiments can scope or share memoization deliberately.
package revcache

import (
	"sync"
)

// Key identifies one lookup: a repository, a symbolic revision and the build
// configuration it was resolved under.
type Key struct {
	Repo   string
	Rev    string
	Config string
}

type entry struct {
	once  sync.Once
	value string
	err   error
}

// Cache resolves each unique Key at most once, regardless of how many
// goroutines ask concurrently.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

func New() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// Get returns the cached value for key, invoking compute exactly once per
// unique key. Errors are cached as well: a failed lookup is not retried.
func (c *Cache) Get(key Key, compute func() (string, error)) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = compute()
	})
	return e.value, e.err
}

// Len reports how many unique keys have been requested.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
