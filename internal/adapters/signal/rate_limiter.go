package signal

import (
	"sync"
	"time"

	"github.com/dkeye/grinder/internal/core"
	"github.com/jonboulle/clockwork"
)

// FrameLimiter is a sliding-window cap on inbound frames per connection.
type FrameLimiter struct {
	clock    clockwork.Clock
	mu       sync.Mutex
	history  map[core.ConnID][]time.Time
	limit    int
	interval time.Duration
}

func NewFrameLimiter(clock clockwork.Clock, limit int, interval time.Duration) *FrameLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FrameLimiter{
		clock:    clock,
		history:  make(map[core.ConnID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (l *FrameLimiter) Allow(id core.ConnID) bool {
	if l.limit <= 0 || l.interval <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	windowStart := now.Add(-l.interval)

	attempts := l.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= l.limit {
		l.history[id] = fresh
		return false
	}
	l.history[id] = append(fresh, now)
	return true
}

// Forget drops the history of a closed connection.
func (l *FrameLimiter) Forget(id core.ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.history, id)
}
