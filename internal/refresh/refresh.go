// Package refresh implements the cooperative poll scheduler. Each session
// owns one Loop. Nothing runs in the background: the loop only answers
// "is a refresh due?" at poll boundaries, so worst-case staleness is the
// interval plus the time until the client's next poll.
package refresh

import (
	"sync"
	"time"
)

// DefaultInterval is the default gap between full re-render cycles.
const DefaultInterval = 5 * time.Second

// Loop is a session-scoped refresh scheduler. It is goroutine-safe.
type Loop struct {
	mu       sync.Mutex
	interval time.Duration
	enabled  bool
	last     time.Time
}

// NewLoop creates an enabled loop with the given interval; a zero or
// negative interval falls back to the default.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{interval: interval, enabled: true}
}

// SetEnabled toggles the loop for this session.
func (l *Loop) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
}

// Enabled reports whether the loop is active.
func (l *Loop) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Due reports whether a full refresh should fire at now. The first call
// after creation only arms the timer. When it returns true the timer is
// reset, so at most one refresh fires per interval.
func (l *Loop) Due(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return false
	}
	if l.last.IsZero() {
		l.last = now
		return false
	}
	if now.Sub(l.last) >= l.interval {
		l.last = now
		return true
	}
	return false
}
