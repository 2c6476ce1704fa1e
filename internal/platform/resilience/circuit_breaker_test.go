package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func failOnce(cb *CircuitBreaker) {
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "threshold",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      time.Second,
	})

	if cb.State() != StateClosed {
		t.Fatalf("initial state = %s, want closed", cb.State())
	}

	failOnce(cb)
	failOnce(cb)
	if cb.State() != StateClosed {
		t.Fatalf("state after 2 failures = %s, want closed", cb.State())
	}

	failOnce(cb)
	if cb.State() != StateOpen {
		t.Fatalf("state after 3 failures = %s, want open", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker returned %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "recovery",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      50 * time.Millisecond,
	})

	failOnce(cb)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	time.Sleep(80 * time.Millisecond)

	// First probe transitions to half-open; two successes close it.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state after recovery = %s, want closed", cb.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "half-open-failure",
		FailureThreshold: 1,
		SuccessThreshold: 3,
		OpenTimeout:      50 * time.Millisecond,
	})

	failOnce(cb)
	time.Sleep(80 * time.Millisecond)

	failOnce(cb)
	if cb.State() != StateOpen {
		t.Fatalf("state after half-open failure = %s, want open", cb.State())
	}
}

func TestBreakerIgnoresContextErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "context",
		FailureThreshold: 2,
	})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.Canceled
		})
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
	}

	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed (context errors ignored)", cb.State())
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "reset-failures",
		FailureThreshold: 3,
	})

	failOnce(cb)
	failOnce(cb)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	failOnce(cb)
	failOnce(cb)

	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed (counter reset by success)", cb.State())
	}

	failOnce(cb)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open after 3 consecutive failures", cb.State())
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var got []State

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "callback",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      50 * time.Millisecond,
		OnStateChange: func(from, to State) {
			mu.Lock()
			got = append(got, to)
			mu.Unlock()
		},
	})

	failOnce(cb)
	time.Sleep(80 * time.Millisecond)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(got) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "manual-reset",
		FailureThreshold: 1,
		OpenTimeout:      time.Hour,
	})

	failOnce(cb)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state after reset = %s, want closed", cb.State())
	}
}

func TestExecuteWithResult(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "with-result"})

	got, err := ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got (%d, %v), want (42, nil)", got, err)
	}

	_, err = ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBreakerConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "concurrent",
		FailureThreshold: 1000,
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = cb.Execute(context.Background(), func(ctx context.Context) error {
					if id%3 == 0 {
						return errors.New("boom")
					}
					return nil
				})
				_ = cb.State()
			}
		}(i)
	}
	wg.Wait()
}
