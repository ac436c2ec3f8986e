// Package retry re-runs operations that fail with transient errors, backing
// off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below one are treated as one.
	Attempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth of the wait.
	MaxDelay time.Duration

	// Multiplier grows the wait after every failed attempt.
	Multiplier float64

	// Jitter spreads each wait uniformly over [delay/2, delay].
	Jitter bool
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:   4,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Observer is told about every failed attempt that will be retried.
type Observer func(attempt int, err error, wait time.Duration)

// Delay returns the wait after the given failed attempt, 1-indexed, before
// jitter.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy().BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

func (p Policy) wait(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter && d > 1 {
		half := d / 2
		d = half + time.Duration(rand.Int64N(int64(d-half)+1))
	}
	return d
}

// Do calls fn until it succeeds, fails with an error retryable rejects, the
// policy runs out of attempts, or ctx is done. observe may be nil.
func Do[T any](ctx context.Context, p Policy, retryable Classifier, observe Observer, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p = p.normalized()

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return zero, err
		}
		if attempt >= p.Attempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		wait := p.wait(attempt)
		if observe != nil {
			observe(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context done while retrying: %w", errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, p Policy, retryable Classifier, observe Observer, fn func(context.Context) error) error {
	_, err := Do(ctx, p, retryable, observe, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// transientMarkers are fragments of JSON-RPC and HTTP errors that clear up on
// their own: provider throttling, gateway hiccups and nodes lagging the head.
var transientMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"502",
	"503",
	"504",
	"timeout",
	"connection reset",
	"connection refused",
	"unexpected eof",
	"header not found",
	"unknown block",
}

// IsTransient classifies node and network errors. Context cancellation is
// never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
