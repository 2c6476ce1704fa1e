package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter for outbound API calls.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	last     time.Time
}

// NewRateLimiter creates a limiter that refills at rate tokens per second
// up to capacity. The bucket starts full.
func NewRateLimiter(rate float64, capacity float64) *RateLimiter {
	return &RateLimiter{
		tokens:   capacity,
		capacity: capacity,
		rate:     rate,
		last:     time.Now(),
	}
}

// NewRateLimiterFromRPM creates a limiter from a requests-per-minute budget
// with a burst of one tenth of the budget (at least 1).
func NewRateLimiterFromRPM(rpm int) *RateLimiter {
	burst := float64(rpm) / 10
	if burst < 1 {
		burst = 1
	}
	return NewRateLimiter(float64(rpm)/60, burst)
}

func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.last).Seconds()
	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.last = now
}

// Allow reports whether a call may proceed immediately, consuming a token
// if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.refill(now)
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("rate limiter wait cancelled: %w", ctx.Err())
		}
	}
}
