// Package stats keeps session statistics for tether-oled: traffic rate
// percentiles, time spent per connectivity state and action counts. It
// also formats the exit summary.
package stats

import (
	"sync"

	"github.com/influxdata/tdigest"
)

// RateSummary tracks the distribution of per-tick traffic rates.
// Percentiles come from a T-Digest so memory stays bounded on long sessions.
type RateSummary struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int64
	sum    float64
	max    float64
}

// NewRateSummary creates an empty summary.
func NewRateSummary() *RateSummary {
	return &RateSummary{
		digest: tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
	}
}

// Add records one rate in bytes per second. Negative rates are ignored.
func (r *RateSummary) Add(rate float64) {
	if rate < 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.digest.Add(rate, 1)
	r.count++
	r.sum += rate
	if rate > r.max {
		r.max = rate
	}
}

// Count returns the number of recorded rates.
func (r *RateSummary) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Mean returns the average rate, or 0 when empty.
func (r *RateSummary) Mean() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

// Max returns the highest recorded rate.
func (r *RateSummary) Max() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max
}

// Quantile returns the estimated q-quantile (0..1), or 0 when empty.
func (r *RateSummary) Quantile(q float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0
	}
	return r.digest.Quantile(q)
}

// P50 returns the median rate.
func (r *RateSummary) P50() float64 { return r.Quantile(0.50) }

// P95 returns the 95th percentile rate.
func (r *RateSummary) P95() float64 { return r.Quantile(0.95) }
