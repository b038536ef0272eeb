// Package volatility estimates annualized realized volatility from spot ticks.
package volatility

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"BinarySentinel/internal/pricing"
)

// MinSamples is the fewest ticks that yield an estimate (two log returns).
const MinSamples = 3

// ErrNotEnoughSamples is returned while the window holds fewer than MinSamples ticks.
var ErrNotEnoughSamples = errors.New("volatility: not enough samples")

type tick struct {
	at    time.Time
	price float64
}

// Estimator keeps a rolling window of ticks. Safe for concurrent use.
type Estimator struct {
	mu     sync.Mutex
	window int
	ticks  []tick
}

// NewEstimator creates an estimator holding at most window ticks.
func NewEstimator(window int) *Estimator {
	if window < MinSamples {
		window = MinSamples
	}
	return &Estimator{window: window, ticks: make([]tick, 0, window)}
}

// Add appends a tick. Non-positive prices and ticks not after the last one are ignored.
func (e *Estimator) Add(at time.Time, price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.ticks); n > 0 && !at.After(e.ticks[n-1].at) {
		return
	}
	if len(e.ticks) == e.window {
		copy(e.ticks, e.ticks[1:])
		e.ticks = e.ticks[:len(e.ticks)-1]
	}
	e.ticks = append(e.ticks, tick{at: at, price: price})
}

// Len returns the number of ticks held.
func (e *Estimator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ticks)
}

// Reset drops every tick.
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.ticks = e.ticks[:0]
	e.mu.Unlock()
}

// Annualized returns the sample stdev of log returns scaled by sqrt(periods per year),
// where the period is the mean spacing between ticks.
func (e *Estimator) Annualized() (float64, error) {
	e.mu.Lock()
	ticks := append([]tick(nil), e.ticks...)
	e.mu.Unlock()

	if len(ticks) < MinSamples {
		return 0, ErrNotEnoughSamples
	}

	returns := make(stats.Float64Data, 0, len(ticks)-1)
	intervals := make(stats.Float64Data, 0, len(ticks)-1)
	for i := 1; i < len(ticks); i++ {
		returns = append(returns, math.Log(ticks[i].price/ticks[i-1].price))
		intervals = append(intervals, ticks[i].at.Sub(ticks[i-1].at).Seconds())
	}

	sd, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, err
	}
	meanInterval, err := stats.Mean(intervals)
	if err != nil {
		return 0, err
	}
	return sd * math.Sqrt(pricing.SecondsPerYear/meanInterval), nil
}

// Or returns the estimate, or fallback when there is none.
func (e *Estimator) Or(fallback float64) float64 {
	v, err := e.Annualized()
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
