package util

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("connection reset")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("connection reset")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryCriticalAbortsImmediately(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return errors.New("unauthorized: bad api key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("critical error retried %d times, want 1 attempt total", attempts)
	}
}

type fakeAPIError struct {
	status int
	code   int
}

func (e *fakeAPIError) Error() string   { return fmt.Sprintf("status %d code %d", e.status, e.code) }
func (e *fakeAPIError) HTTPStatus() int { return e.status }
func (e *fakeAPIError) VenueCode() int  { return e.code }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityLow},
		{"http 429", &fakeAPIError{status: 429}, SeverityMedium},
		{"venue -1003", &fakeAPIError{status: 200, code: -1003}, SeverityMedium},
		{"http 401", &fakeAPIError{status: 401}, SeverityCritical},
		{"bad signature code", &fakeAPIError{status: 200, code: -1022}, SeverityCritical},
		{"http 503", &fakeAPIError{status: 503}, SeverityHigh},
		{"http 400", &fakeAPIError{status: 400}, SeverityLow},
		{"keyword rate limit", errors.New("Too Many Requests"), SeverityMedium},
		{"keyword auth", errors.New("invalid API key"), SeverityCritical},
		{"keyword symbol", errors.New("unknown symbol FOOUSDT"), SeverityLow},
		{"keyword network", errors.New("dial tcp: connection refused"), SeverityHigh},
		{"deadline", context.DeadlineExceeded, SeverityHigh},
		{"unclassified", errors.New("weird"), SeverityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyWrappedError(t *testing.T) {
	err := fmt.Errorf("fetching BTCUSDT: %w", &fakeAPIError{status: 429})
	if got := Classify(err); got != SeverityMedium {
		t.Errorf("wrapped 429 classified as %v, want medium", got)
	}
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.ShouldRetry(&fakeAPIError{status: 401}, 0) {
		t.Error("critical error must never retry")
	}
	if !p.ShouldRetry(&fakeAPIError{status: 503}, 0) {
		t.Error("high-severity error should retry on first attempt")
	}
	if p.ShouldRetry(&fakeAPIError{status: 503}, p.MaxRetries) {
		t.Error("should not retry past MaxRetries")
	}
	if !p.ShouldRetry(errors.New("unknown symbol"), 0) {
		t.Error("low-severity error gets one retry")
	}
	if p.ShouldRetry(errors.New("unknown symbol"), 1) {
		t.Error("low-severity error must not retry twice")
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{
		MaxRetries: 10,
		BaseDelay:  time.Second,
		MaxDelay:   8 * time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	if got := p.BackoffDelay(0); got != time.Second {
		t.Errorf("BackoffDelay(0) = %v, want 1s", got)
	}
	if got := p.BackoffDelay(2); got != 4*time.Second {
		t.Errorf("BackoffDelay(2) = %v, want 4s", got)
	}
	if got := p.BackoffDelay(6); got != 8*time.Second {
		t.Errorf("BackoffDelay(6) = %v, want cap 8s", got)
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	p := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
		Jitter:     true,
		rand:       func() float64 { return 0 },
	}
	if got := p.BackoffDelay(0); got != 500*time.Millisecond {
		t.Errorf("jitter floor = %v, want 500ms", got)
	}

	p.rand = func() float64 { return 1 }
	if got := p.BackoffDelay(0); got != time.Second {
		t.Errorf("jitter ceiling = %v, want 1s", got)
	}
}

func TestRateRegulatorAdapts(t *testing.T) {
	r := NewRateRegulator(100*time.Millisecond, time.Second)

	if got := r.Delay(); got != 100*time.Millisecond {
		t.Fatalf("initial delay = %v, want base", got)
	}

	r.OnRateLimit()
	if got := r.Delay(); got != 200*time.Millisecond {
		t.Errorf("delay after one rate limit = %v, want 200ms", got)
	}

	// Penalties cap at max.
	for i := 0; i < 10; i++ {
		r.OnRateLimit()
	}
	if got := r.Delay(); got != time.Second {
		t.Errorf("delay after many rate limits = %v, want cap 1s", got)
	}

	// Sustained success decays back to base.
	for i := 0; i < 100; i++ {
		r.OnSuccess()
	}
	if got := r.Delay(); got != 100*time.Millisecond {
		t.Errorf("delay after sustained success = %v, want base", got)
	}
}

func TestRateRegulatorConcurrentUpdates(t *testing.T) {
	r := NewRateRegulator(time.Millisecond, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.OnRateLimit()
			} else {
				r.OnSuccess()
			}
			_ = r.Delay()
		}(i)
	}
	wg.Wait()

	if d := r.Delay(); d < time.Millisecond || d > time.Second {
		t.Errorf("delay %v escaped [base, max] under concurrency", d)
	}
}

func TestRateRegulatorWaitCancellation(t *testing.T) {
	r := NewRateRegulator(time.Hour, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	if err := r.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait returned %v, want context.Canceled", err)
	}
}

func TestTTLCache(t *testing.T) {
	c := NewTTLCache(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	c.Set("k", 42)
	if v, ok := c.Get("k"); !ok || v.(int) != 42 {
		t.Errorf("Get = %v/%v, want 42/true", v, ok)
	}

	// Expiry.
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss")
	}

	c.Set("k2", 1)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
}

func TestTTLCacheGetOrCompute(t *testing.T) {
	c := NewTTLCache(time.Minute)
	calls := 0
	compute := func() (any, error) {
		calls++
		return "v", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute("k", compute)
		if err != nil || v.(string) != "v" {
			t.Fatalf("GetOrCompute = %v/%v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}

	if _, err := c.GetOrCompute("err", func() (any, error) {
		return nil, errors.New("boom")
	}); err == nil {
		t.Error("compute error should propagate")
	}
	if _, ok := c.Get("err"); ok {
		t.Error("failed compute must not be cached")
	}
}

func TestTTLCacheCleanupExpired(t *testing.T) {
	c := NewTTLCache(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	now = now.Add(2 * time.Minute)
	c.Set("b", 2)

	if evicted := c.CleanupExpired(); evicted != 1 {
		t.Errorf("CleanupExpired evicted %d, want 1", evicted)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after cleanup, want 1", c.Len())
	}
}
