// Package retry provides the bounded retry policy shared by the RPC clients,
// the endpoint pool health probes and the bundle submitter.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default policy values.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 250 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultMultiplier   = 2.0
)

// ErrorClassifier reports whether an error is worth another attempt.
type ErrorClassifier func(error) bool

// Policy is an explicit bounded retry policy: attempt budget, exponential
// backoff and the set of retryable errors.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable decides whether an error is retried. Nil retries every error.
	Retryable ErrorClassifier
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Default returns the default policy retrying transient errors.
func Default() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
		Retryable:    IsTransient,
	}
}

// WithMaxRetries returns a copy allowing n retries after the first attempt.
func (p Policy) WithMaxRetries(n int) Policy {
	if n < 0 {
		n = 0
	}
	p.MaxAttempts = n + 1
	return p
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is exhausted or ctx is done. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = func(err error, d time.Duration) {
			p.OnRetry(attempt, err, d)
		}
	}

	return backoff.RetryNotify(operation, p.backOff(ctx, attempts), notify)
}

func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = orDuration(p.InitialDelay, DefaultInitialDelay)
	b.MaxInterval = orDuration(p.MaxDelay, DefaultMaxDelay)
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = DefaultMultiplier
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

func orDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Transient marks an error as retryable.
type Transient struct {
	Err error
}

func (e *Transient) Error() string {
	return e.Err.Error()
}

func (e *Transient) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err so that IsTransient reports true.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

// IsTransient reports whether err was marked transient. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var t *Transient
	return errors.As(err, &t)
}
