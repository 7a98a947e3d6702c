package ratelimit

import (
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
)

// Result reports the outcome of a limiter check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	startedAt time.Time
	count     int
}

// Limiter is an identifier-scoped fixed-window rate limiter. A successful
// Check consumes one unit of the identifier's budget.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    time2.Clock

	mu      sync.Mutex
	windows map[string]*window
}

// New creates a limiter allowing limit checks per interval per identifier.
func New(limit int, interval time.Duration, clock time2.Clock) *Limiter {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clock,
		windows:  make(map[string]*window),
	}
}

// Check consumes one unit of budget for the identifier if any remains.
// When the budget is exhausted, ResetAt reports when the window reopens.
func (l *Limiter) Check(identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	w, ok := l.windows[identifier]
	if !ok || now.Sub(w.startedAt) >= l.interval {
		w = &window{startedAt: now}
		l.windows[identifier] = w
	}

	resetAt := w.startedAt.Add(l.interval)
	if w.count >= l.limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.count++
	return Result{Allowed: true, Remaining: l.limit - w.count, ResetAt: resetAt}
}

// Remaining reports the identifier's unused budget without consuming any.
func (l *Limiter) Remaining(identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || l.clock.Now().Sub(w.startedAt) >= l.interval {
		return l.limit
	}
	return l.limit - w.count
}
