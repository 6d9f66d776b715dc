package connection

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Reconnection delay defaults.
const (
	InitialBackoff    = time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0
)

// BackoffConfig customizes a Backoff. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter adds up to this fraction of the base delay. Zero disables it.
	Jitter float64
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Backoff yields capped exponential delays indexed by the attempt count.
type Backoff struct {
	mu       sync.Mutex
	cfg      BackoffConfig
	attempts int
}

// NewBackoff returns the 1s, 2s, 4s ... 30s sequence without jitter.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig returns a Backoff using cfg.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg.withDefaults()}
}

// base returns the un-jittered delay for attempt n.
func (b *Backoff) base(n int) time.Duration {
	d := float64(b.cfg.Initial)
	for i := 0; i < n; i++ {
		d *= b.cfg.Multiplier
		if d >= float64(b.cfg.Max) {
			return b.cfg.Max
		}
	}
	return time.Duration(d)
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.cfg.Jitter == 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*rand.Float64())
}

// Next returns the delay for the upcoming attempt and counts it.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.jittered(b.base(b.attempts))
	b.attempts++
	return d
}

// Peek returns the delay Next would return, without counting an attempt.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.base(b.attempts))
}

// Current returns the un-jittered delay of the upcoming attempt.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base(b.attempts)
}

// Reset restarts the sequence at the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts returns how many delays were handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// BackoffSequence lists the default delays up to and including the cap.
func BackoffSequence() []time.Duration {
	b := NewBackoff()
	var seq []time.Duration
	for {
		d := b.Next()
		seq = append(seq, d)
		if d == MaxBackoff {
			return seq
		}
	}
}
