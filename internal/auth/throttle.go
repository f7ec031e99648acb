package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"permit-board/internal/clock"
)

const throttleIdle = 15 * time.Minute

// Throttle limits login attempts per client key with a token bucket each.
type Throttle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clock    clock.Clock
	limiters map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle allows perMinute attempts per key with the given burst. A
// non-positive perMinute disables throttling.
func NewThrottle(perMinute float64, burst int, c clock.Clock) *Throttle {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limit:    limit,
		burst:    burst,
		clock:    clock.OrReal(c),
		limiters: make(map[string]*throttleEntry),
	}
}

// Allow consumes one attempt for key.
func (t *Throttle) Allow(key string) bool {
	if t == nil || t.limit == rate.Inf {
		return true
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(now)
	entry, ok := t.limiters[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (t *Throttle) prune(now time.Time) {
	if len(t.limiters) < 256 {
		return
	}
	for key, entry := range t.limiters {
		if now.Sub(entry.lastSeen) > throttleIdle {
			delete(t.limiters, key)
		}
	}
}
