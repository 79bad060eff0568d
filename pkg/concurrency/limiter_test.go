package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLimiterAcquireReleaseTracksMetrics(t *testing.T) {
	limiter := NewLimiter(2)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if limiter.CurrentActive() != 1 {
		t.Fatalf("expected 1 active slot, got %d", limiter.CurrentActive())
	}
	limiter.Release()
	if limiter.CurrentActive() != 0 {
		t.Fatalf("expected 0 active slots, got %d", limiter.CurrentActive())
	}

	m := limiter.GetMetrics()
	if m.TotalAcquired != 1 || m.TotalReleased != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.PeakConcurrent != 1 {
		t.Fatalf("expected peak 1, got %d", m.PeakConcurrent)
	}
}

func TestLimiterEnforcesCeiling(t *testing.T) {
	const ceiling = 3
	limiter := NewLimiter(ceiling)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.GoSync(context.Background(), func() error {
				time.Sleep(2 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	m := limiter.GetMetrics()
	if m.PeakConcurrent > ceiling {
		t.Fatalf("peak %d exceeds ceiling %d", m.PeakConcurrent, ceiling)
	}
	if m.TotalAcquired != 20 || m.TotalReleased != 20 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestLimiterAcquireHonorsContext(t *testing.T) {
	limiter := NewLimiter(1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestLimiterClampsInvalidCeiling(t *testing.T) {
	limiter := NewLimiter(0)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("clamped limiter should grant one slot: %v", err)
	}
}

func TestLimiterWithoutBreakerNeverRefuses(t *testing.T) {
	limiter := NewLimiter(2)
	ctx := context.Background()

	fail := func() error { return errors.New("remote down") }
	for i := 0; i < 150; i++ {
		if err := limiter.GoSync(ctx, fail); err == nil || err.Error() != "remote down" {
			t.Fatalf("iteration %d: expected the call error, got %v", i, err)
		}
	}

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("limiter without a breaker refused a slot: %v", err)
	}
	limiter.Release()

	if limiter.CircuitBreakerState() != "disabled" {
		t.Fatalf("expected disabled breaker state, got %s", limiter.CircuitBreakerState())
	}
}

func TestGoSyncFeedsCircuitBreaker(t *testing.T) {
	breaker := NewCircuitBreaker(3, time.Minute)
	limiter := NewLimiterWithCircuitBreaker(2, breaker)
	ctx := context.Background()

	fail := func() error { return errors.New("remote down") }
	for i := 0; i < 3; i++ {
		_ = limiter.GoSync(ctx, fail)
	}

	if !breaker.IsOpen() {
		t.Fatal("breaker should open after consecutive failures")
	}
	if err := limiter.Acquire(ctx); err == nil {
		t.Fatal("open breaker should refuse new slots")
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	breaker := NewCircuitBreaker(2, 20*time.Millisecond)

	breaker.RecordFailure()
	breaker.RecordFailure()
	if !breaker.IsOpen() {
		t.Fatal("breaker should be open")
	}

	time.Sleep(30 * time.Millisecond)
	if breaker.IsOpen() {
		t.Fatal("breaker should probe half-open after the reset timeout")
	}
	if breaker.GetState() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", breaker.GetState())
	}

	for i := 0; i < 5; i++ {
		breaker.RecordSuccess()
	}
	if breaker.GetState() != StateClosed {
		t.Fatalf("expected closed after recovery, got %s", breaker.GetState())
	}
}

func TestCircuitBreakerReopensFromHalfOpen(t *testing.T) {
	breaker := NewCircuitBreaker(1, 10*time.Millisecond)

	breaker.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if breaker.IsOpen() {
		t.Fatal("breaker should probe half-open")
	}

	breaker.RecordFailure()
	if !breaker.IsOpen() {
		t.Fatal("failure in half-open must reopen the circuit")
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_CONCURRENT", "42")
	t.Setenv("DAEDALUS_BREAKER_THRESHOLD", "7")

	cfg := LoadConfig()
	if cfg.MaxConcurrent != 42 {
		t.Fatalf("expected MaxConcurrent 42, got %d", cfg.MaxConcurrent)
	}
	if cfg.BreakerThreshold != 7 {
		t.Fatalf("expected BreakerThreshold 7, got %d", cfg.BreakerThreshold)
	}
	if cfg.Source != ConfigSourceEnvVar {
		t.Fatalf("expected env var source, got %s", cfg.Source)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.MaxConcurrent < 1 {
		t.Fatalf("expected positive MaxConcurrent, got %d", cfg.MaxConcurrent)
	}
	if cfg.BreakerThreshold < 1 {
		t.Fatalf("expected positive BreakerThreshold, got %d", cfg.BreakerThreshold)
	}
	if cfg.Source == "" {
		t.Fatal("expected config source to be populated")
	}
}
