package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// entry is one cached item with its expiration
type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// Memory is a thread-safe in-process implementation of Cache with TTL
// support and background cleanup. It backs tests and cacheless deployments
// where no Redis server is configured; it provides the same single-process
// semantics but, unlike Redis, no cross-process exclusion.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	stop    chan struct{}
	stopped bool
}

// NewMemory creates a new in-memory cache and starts its cleanup goroutine
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go m.cleanupLoop(time.Minute)
	return m
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			for k, e := range m.entries {
				if e.expired() {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// Get retrieves a value; expired entries are treated as absent
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.expired() {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores a value with the given TTL (0 means no expiry)
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, expiresAt: expiry(ttl)}
	return nil
}

// Delete removes a key
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// SetNX sets the key only if absent (or expired), with the given TTL
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !e.expired() {
		return false, nil
	}
	m.entries[key] = entry{value: value, expiresAt: expiry(ttl)}
	return true, nil
}

// Incr increments the counter at key, creating it at 1 if absent.
// A pre-existing non-numeric value resets to 1, matching a fresh counter.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if e, ok := m.entries[key]; ok && !e.expired() {
		current, _ = strconv.ParseInt(e.value, 10, 64)
		current++
		m.entries[key] = entry{value: strconv.FormatInt(current, 10), expiresAt: e.expiresAt}
		return current, nil
	}
	m.entries[key] = entry{value: "1"}
	return 1, nil
}

// Expire sets the TTL on an existing key
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !e.expired() {
		e.expiresAt = expiry(ttl)
		m.entries[key] = e
	}
	return nil
}

// Stop terminates the cleanup goroutine
func (m *Memory) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stopped {
		m.stopped = true
		close(m.stop)
	}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
