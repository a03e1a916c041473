package connection

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Redial timing defaults.
const (
	// DefaultInitialDelay is the delay before the first redial.
	DefaultInitialDelay = 1 * time.Second

	// DefaultMaxDelay caps the delay between redials.
	DefaultMaxDelay = 60 * time.Second

	// DefaultMultiplier is the growth factor between attempts.
	DefaultMultiplier = 2.0

	// DefaultJitter is the maximum random fraction added to each delay.
	DefaultJitter = 0.25
)

// BackoffConfig parameterizes redial timing. The zero value selects
// the defaults.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Backoff produces exponentially growing, jittered redial delays. The
// delay is derived from the attempt count, so Reset is the only state
// transition besides Next.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	attempts int
}

// NewBackoff creates a Backoff from cfg, filling in defaults for zero
// fields.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg.withDefaults()}
}

// Next returns the delay to wait before the upcoming attempt and
// advances the attempt counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	attempt := b.attempts
	b.attempts++
	b.mu.Unlock()

	return b.delayFor(attempt)
}

// Peek returns the delay Next would produce, without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	attempt := b.attempts
	b.mu.Unlock()

	return b.delayFor(attempt)
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Reset rewinds to the initial delay. Call after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

func (b *Backoff) delayFor(attempt int) time.Duration {
	base := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt))
	if capped := float64(b.cfg.MaxDelay); base > capped {
		base = capped
	}
	if b.cfg.Jitter > 0 {
		base += base * b.cfg.Jitter * rand.Float64()
	}
	return time.Duration(base)
}
