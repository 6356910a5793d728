// Package poll runs a fixed-interval poll that reschedules itself before doing
// its work, so a slow poll never delays the next one.
package poll

import (
	"sync"
	"time"
)

// Strategy is the work done on every firing.
type Strategy interface {
	Poll()
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func()

// Poll calls f().
func (f StrategyFunc) Poll() {
	f()
}

// Loop fires a Strategy every interval. At most one timer is outstanding.
// The schedule is drift tolerant, not drift corrected: each firing schedules
// the next one interval after it started.
type Loop struct {
	strategy Strategy

	mu       sync.Mutex
	timer    *time.Timer
	interval time.Duration
	running  bool
	gen      uint64
	inflight sync.WaitGroup
	firings  uint64
}

// NewLoop creates a stopped Loop running strategy.
func NewLoop(strategy Strategy) *Loop {
	return &Loop{strategy: strategy}
}

// Start schedules the first firing after interval. It does nothing if the
// loop is already running or interval is not positive.
func (l *Loop) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}

	l.running = true
	l.interval = interval
	l.gen++
	l.schedule(l.gen)
}

// Stop cancels the pending firing and waits for an in-flight poll to finish.
// After Stop returns no further polls run. Stop is idempotent and must not be
// called from within the strategy.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.running = false
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	l.inflight.Wait()
}

// Running reports whether the loop is scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Firings returns how many polls have started.
func (l *Loop) Firings() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.firings
}

// schedule must be called with l.mu held.
func (l *Loop) schedule(gen uint64) {
	l.timer = time.AfterFunc(l.interval, func() { l.fire(gen) })
}

func (l *Loop) fire(gen uint64) {
	l.mu.Lock()
	if !l.running || gen != l.gen {
		l.mu.Unlock()
		return
	}

	// Reschedule first; the work below may be slow.
	l.schedule(gen)
	l.firings++
	l.inflight.Add(1)
	l.mu.Unlock()

	defer l.inflight.Done()
	l.strategy.Poll()
}
