package process

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the exponential backoff used between route repair
// attempts.
type BackoffConfig struct {
	Initial    time.Duration // First delay (default: 2s)
	Max        time.Duration // Delay cap (default: 30s)
	Multiplier float64       // Growth per attempt (default: 1.7)
	JitterPct  float64       // Jitter as a fraction of the delay (default: 0.2 = ±10%)
}

// DefaultBackoffConfig returns the route repair defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    2 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.2,
	}
}

// Backoff calculates exponential delays with deterministic jitter.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a calculator. The seed fixes the jitter sequence.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	// initial * multiplier^attempts, capped
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))
	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset sets the attempt counter back to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}
