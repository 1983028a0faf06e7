package ratelimit

import (
	"context"
	"sync"
	"time"
)

// staleAfter is how long a key may sit idle before cleanup drops it.
const staleAfter = 15 * time.Minute

// Memory is an in-process sliding-window limiter.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxReqs int
	window  time.Duration
	now     func() time.Time
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	requests []time.Time
	lastSeen time.Time
}

// NewMemory allows maxRequests per key within any window-long interval.
// Call Stop to end the background cleanup.
func NewMemory(maxRequests int, window time.Duration) *Memory {
	m := &Memory{
		buckets: make(map[string]*bucket),
		maxReqs: maxRequests,
		window:  window,
		now:     time.Now,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Allow never returns an error. An empty key is never limited.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if key == "" {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{}
		m.buckets[key] = b
	}

	// Requests are appended in time order, so the live ones are a suffix.
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(b.requests) && !b.requests[i].After(cutoff) {
		i++
	}
	b.requests = b.requests[i:]
	b.lastSeen = now

	if len(b.requests) >= m.maxReqs {
		return false, nil
	}

	b.requests = append(b.requests, now)
	return true, nil
}

func (m *Memory) cleanupLoop() {
	for {
		select {
		case <-m.cleanup.C:
			m.dropStale()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) dropStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := m.now().Add(-staleAfter)
	for key, b := range m.buckets {
		if b.lastSeen.Before(threshold) {
			delete(m.buckets, key)
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (m *Memory) Stop() {
	m.once.Do(func() {
		m.cleanup.Stop()
		close(m.done)
	})
}
