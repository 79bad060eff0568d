// Package concurrency bounds the number of simultaneously in-flight scoring
// calls and exposes the observed concurrency so the ceiling can be verified.
package concurrency

import (
	"context"
	"sync/atomic"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Metrics tracks limiter activity over the lifetime of a batch
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter provides semaphore-based concurrency control around endpoint
// calls. The peak-concurrent metric is the observable form of the ceiling
// guarantee: it must never exceed the configured maximum.
type Limiter struct {
	sem    chan struct{}
	active atomic.Int64

	totalAcquired   atomic.Int64
	totalReleased   atomic.Int64
	peakConcurrent  atomic.Int64
	totalWaitTimeNs atomic.Int64

	breaker *CircuitBreaker
}

// NewLimiter creates a limiter allowing at most maxConcurrent in-flight
// operations. Values below 1 are clamped to 1. No circuit breaker is
// installed; every claimed slot reaches the guarded call.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem: make(chan struct{}, maxConcurrent),
	}
}

// NewLimiterWithCircuitBreaker creates a limiter that refuses slots while
// the given breaker is open
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	l := NewLimiter(maxConcurrent)
	l.breaker = cb
	return l
}

// Acquire claims a slot, blocking until one is free or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.breaker != nil && l.breaker.IsOpen() {
		return sdkerrors.NewError("CIRCUIT_OPEN", "circuit breaker is open", nil)
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		l.totalWaitTimeNs.Add(time.Since(start).Nanoseconds())
		l.totalAcquired.Add(1)
		l.updatePeak(l.active.Add(1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
		l.totalReleased.Add(1)
	default:
		// Release without a matching Acquire; nothing to return
	}
}

// GoSync runs fn under a slot and feeds the outcome to the circuit breaker
// when one is installed
func (l *Limiter) GoSync(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	if err := fn(); err != nil {
		if l.breaker != nil {
			l.breaker.RecordFailure()
		}
		return err
	}
	if l.breaker != nil {
		l.breaker.RecordSuccess()
	}
	return nil
}

// CurrentActive returns the number of slots currently held
func (l *Limiter) CurrentActive() int64 {
	return l.active.Load()
}

// GetMetrics returns a snapshot of the limiter metrics
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   l.totalAcquired.Load(),
		TotalReleased:   l.totalReleased.Load(),
		PeakConcurrent:  l.peakConcurrent.Load(),
		TotalWaitTimeNs: l.totalWaitTimeNs.Load(),
	}
}

// GetAverageWaitTime calculates the average wait time for acquiring a slot
func (l *Limiter) GetAverageWaitTime() time.Duration {
	m := l.GetMetrics()
	if m.TotalAcquired == 0 {
		return 0
	}
	return time.Duration(m.TotalWaitTimeNs / m.TotalAcquired)
}

// CircuitBreakerState returns the breaker state as a string for logging,
// or "disabled" when no breaker is installed
func (l *Limiter) CircuitBreakerState() string {
	if l.breaker == nil {
		return "disabled"
	}
	return l.breaker.GetState().String()
}

// updatePeak raises the peak metric if current exceeds it
func (l *Limiter) updatePeak(current int64) {
	for {
		peak := l.peakConcurrent.Load()
		if current <= peak {
			return
		}
		if l.peakConcurrent.CompareAndSwap(peak, current) {
			return
		}
	}
}
