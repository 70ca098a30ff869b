package util

import (
	"context"
	"sync"
	"time"
)

const (
	// recoveryFactor shrinks the delay after each successful request.
	recoveryFactor = 0.9
	// penaltyFactor grows the delay after each rate-limit response.
	penaltyFactor = 2.0
)

// RateRegulator tracks an adaptive inter-request delay for one resource
// class. Sustained success decays the delay back toward the base; rate-limit
// errors grow it toward the maximum. Safe for concurrent use.
type RateRegulator struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	current time.Duration
}

// NewRateRegulator creates a regulator starting at base, never exceeding max.
func NewRateRegulator(base, max time.Duration) *RateRegulator {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if max < base {
		max = 10 * base
	}
	return &RateRegulator{
		base:    base,
		max:     max,
		current: base,
	}
}

// Delay returns the delay callers should observe before the next request.
func (r *RateRegulator) Delay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// OnSuccess decays the current delay toward the base delay.
func (r *RateRegulator) OnSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = time.Duration(float64(r.current) * recoveryFactor)
	if r.current < r.base {
		r.current = r.base
	}
}

// OnRateLimit grows the current delay toward the maximum and returns the new
// delay, so callers can report how long the next wait will be.
func (r *RateRegulator) OnRateLimit() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = time.Duration(float64(r.current) * penaltyFactor)
	if r.current > r.max {
		r.current = r.max
	}
	return r.current
}

// Wait sleeps for the current delay or until the context is cancelled.
func (r *RateRegulator) Wait(ctx context.Context) error {
	d := r.Delay()
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
