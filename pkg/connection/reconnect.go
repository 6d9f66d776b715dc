package connection

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Reconnector schedules reconnection attempts with backoff. At most one
// attempt is pending at any time.
type Reconnector struct {
	mu      sync.Mutex
	clock   clock.Clock
	backoff *Backoff

	timer *clock.Timer
	gen   uint64
}

// NewReconnector creates a reconnector. A nil clock uses the wall clock and a
// nil backoff uses NewBackoff.
func NewReconnector(clk clock.Clock, backoff *Backoff) *Reconnector {
	if clk == nil {
		clk = clock.New()
	}
	if backoff == nil {
		backoff = NewBackoff()
	}
	return &Reconnector{clock: clk, backoff: backoff}
}

// Schedule arms a timer that calls fn after the next backoff delay. It
// returns the delay and true, or false when an attempt is already pending.
func (r *Reconnector) Schedule(fn func()) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		return 0, false
	}

	delay := r.backoff.Next()
	r.gen++
	gen := r.gen
	r.timer = r.clock.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.gen != gen || r.timer == nil {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()
		fn()
	})
	return delay, true
}

// Cancel disarms a pending attempt. It reports whether one was pending.
func (r *Reconnector) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer == nil {
		return false
	}
	r.timer.Stop()
	r.timer = nil
	r.gen++
	return true
}

// Pending reports whether an attempt is scheduled.
func (r *Reconnector) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Reset restarts the backoff sequence without touching a pending timer.
func (r *Reconnector) Reset() {
	r.backoff.Reset()
}

// Attempts returns the number of attempts scheduled since the last Reset.
func (r *Reconnector) Attempts() int {
	return r.backoff.Attempts()
}
