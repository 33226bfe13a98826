package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the map size at which closed windows are evicted.
const sweepThreshold = 1024

type window struct {
	count int
	reset time.Time
}

// Memory keeps windows in process. Limits are not shared between replicas.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

// NewMemory returns a limiter admitting perMinute requests per subject, or
// nil when perMinute is not positive.
func NewMemory(perMinute int) *Memory {
	if perMinute <= 0 {
		return nil
	}
	return &Memory{
		limit:   perMinute,
		window:  Window,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, subject string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[subject]
	if !ok || !now.Before(w.reset) {
		if !ok && len(m.windows) >= sweepThreshold {
			m.sweep(now)
		}
		w = &window{reset: now.Add(m.window)}
		m.windows[subject] = w
	}
	w.count++
	if w.count > m.limit {
		return false, w.reset.Sub(now), nil
	}
	return true, 0, nil
}

func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.reset) {
			delete(m.windows, k)
		}
	}
}
