package util

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Severity is the closed classification of request failures. It decides
// whether and how a failed call is retried.
type Severity int

const (
	// SeverityLow marks data-shape anomalies a caller may tolerate, such as
	// an unknown symbol. Retried at most once.
	SeverityLow Severity = iota
	// SeverityMedium marks rate-limit signals. Retried after regulator backoff.
	SeverityMedium
	// SeverityHigh marks transient network or server failures. Retried.
	SeverityHigh
	// SeverityCritical marks non-retryable failures such as bad credentials
	// or malformed requests.
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// statusCoder is implemented by API errors that carry an HTTP status.
type statusCoder interface {
	error
	HTTPStatus() int
}

// venueCoder is implemented by API errors that carry a venue error code.
type venueCoder interface {
	error
	VenueCode() int
}

// Classify maps an error to a Severity. Typed API errors are inspected
// first; everything else falls back to message keywords.
func Classify(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	var vc venueCoder
	if errors.As(err, &vc) {
		switch vc.VenueCode() {
		case -1003: // TOO_MANY_REQUESTS
			return SeverityMedium
		case -1121: // invalid symbol
			return SeverityLow
		case -2014, -2015, -1022: // bad API key / signature
			return SeverityCritical
		}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatus(); {
		case code == 429 || code == 418:
			return SeverityMedium
		case code == 401 || code == 403:
			return SeverityCritical
		case code == 400 || code == 404:
			return SeverityLow
		case code >= 500:
			return SeverityHigh
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return SeverityHigh
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return SeverityHigh
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "too many requests", "rate limit", "429", "-1003"):
		return SeverityMedium
	case containsAny(msg, "unauthorized", "forbidden", "api key", "api-key", "signature"):
		return SeverityCritical
	case containsAny(msg, "invalid symbol", "symbol not found", "unknown symbol"):
		return SeverityLow
	case containsAny(msg, "500", "502", "503", "504", "server error", "internal error"):
		return SeverityHigh
	case containsAny(msg, "connection", "timeout", "network", "dns", "socket", "eof"):
		return SeverityHigh
	}

	return SeverityMedium
}

// IsRateLimit reports whether err is a rate-limit signal.
func IsRateLimit(err error) bool {
	return Classify(err) == SeverityMedium
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// RetryPolicy decides retry scheduling for classified failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool

	// rand allows deterministic jitter in tests; nil uses the global source.
	rand func() float64
}

// DefaultRetryPolicy mirrors the venue client defaults: three retries with
// jittered exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// ShouldRetry reports whether a failure at the given zero-based attempt
// should be retried. Critical errors and exhausted budgets are final; a
// low-severity error is given a single second chance.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	severity := Classify(err)
	if severity == SeverityCritical {
		return false
	}
	if severity == SeverityLow && attempt >= 1 {
		return false
	}
	return attempt < p.MaxRetries
}

// BackoffDelay returns the pause before retrying the given zero-based
// attempt: base * multiplier^attempt, capped, with 50-100% jitter.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2.0
	}

	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		r := p.rand
		if r == nil {
			r = rand.Float64
		}
		d = time.Duration(float64(d) * (0.5 + 0.5*r()))
	}
	return d
}

// RecommendedAction returns a human-readable remediation hint for err. It is
// diagnostic only and never drives control flow.
func RecommendedAction(err error) string {
	severity := Classify(err)
	msg := strings.ToLower(err.Error())

	switch {
	case severity == SeverityCritical:
		return "check API key and permission settings"
	case severity == SeverityMedium:
		return "rate limited; request interval adjusts automatically"
	case containsAny(msg, "connection", "dns", "socket"):
		return "check network connectivity or proxy configuration"
	case containsAny(msg, "invalid symbol", "symbol not found", "unknown symbol"):
		return "verify the symbol exists and is tradable"
	default:
		return "check the API documentation for error details"
	}
}

// Retry calls fn up to maxAttempts times with exponential backoff starting
// at baseDelay. It returns nil on the first successful call, or the last
// error if all attempts fail. Critical errors abort immediately. The
// function respects context cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if Classify(err) == SeverityCritical {
			return err
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}
